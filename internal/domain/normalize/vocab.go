package normalize

import "strings"

// taskInfo describes one canonical evaluation task.
type taskInfo struct {
	Display string
	// Metric is the task's canonical metric, used when a raw record does
	// not carry one.
	Metric string
}

// metricInfo declares a metric's valid value range and whether reported
// percentages (0-100) are rescaled into it.
type metricInfo struct {
	Lo, Hi        float64
	PercentScaled bool
}

// builtinTasks is the canonical task vocabulary, seeded from the common
// public benchmark suites.
func builtinTasks() map[string]taskInfo {
	return map[string]taskInfo{
		"mmlu":       {Display: "MMLU", Metric: "accuracy"},
		"humaneval":  {Display: "HumanEval", Metric: "pass@1"},
		"mbpp":       {Display: "MBPP", Metric: "pass@1"},
		"truthfulqa": {Display: "TruthfulQA", Metric: "accuracy"},
		"hellaswag":  {Display: "HellaSwag", Metric: "accuracy"},
		"gsm8k":      {Display: "GSM8K", Metric: "exact_match"},
		"arc":        {Display: "ARC", Metric: "accuracy"},
		"winogrande": {Display: "WinoGrande", Metric: "accuracy"},
	}
}

// builtinTaskAliases maps folded free-form names onto canonical task ids.
func builtinTaskAliases() map[string]string {
	return map[string]string{
		"arcchallenge":      "arc",
		"arcc":              "arc",
		"ai2arc":            "arc",
		"openaihumaneval":   "humaneval",
		"humanevalplus":     "humaneval",
		"cais/mmlu":         "mmlu",
		"truthfulqamc":      "truthfulqa",
		"gsm8kcot":          "gsm8k",
		"hendryckstestmmlu": "mmlu",
	}
}

// builtinMetrics is the canonical metric vocabulary. All builtin metrics
// live in [0,1] and accept percentage-scaled input.
func builtinMetrics() map[string]metricInfo {
	return map[string]metricInfo{
		"accuracy":    {Lo: 0, Hi: 1, PercentScaled: true},
		"pass@1":      {Lo: 0, Hi: 1, PercentScaled: true},
		"pass@10":     {Lo: 0, Hi: 1, PercentScaled: true},
		"exact_match": {Lo: 0, Hi: 1, PercentScaled: true},
		"f1":          {Lo: 0, Hi: 1, PercentScaled: true},
	}
}

// builtinMetricAliases maps folded metric names onto canonical ones.
func builtinMetricAliases() map[string]string {
	return map[string]string{
		"acc":        "accuracy",
		"accnorm":    "accuracy",
		"pass1":      "pass@1",
		"passat1":    "pass@1",
		"pass@1":     "pass@1",
		"pass10":     "pass@10",
		"passat10":   "pass@10",
		"em":         "exact_match",
		"exactmatch": "exact_match",
		"f1score":    "f1",
	}
}

// fold collapses case, whitespace and separator punctuation so that
// variants like "Human-Eval" and "human_eval" land on the same alias.
func fold(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-', '_', '.', '(', ')':
			return -1
		}
		return r
	}, s)
}
