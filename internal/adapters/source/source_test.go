package source_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/benchwatch/benchwatch/internal/adapters/source"
	. "github.com/smartystreets/goconvey/convey"
)

const scrapeFile = `{
  "model_id": "acme/falcon-9b",
  "scraped_at": "2026-08-01T12:00:00Z",
  "benchmarks": [
    {"name": "MMLU", "value": 0.72, "num_shots": 5},
    {"name": "HumanEval", "metric": "pass@1", "value": "41%", "dataset": "humaneval-base"}
  ]
}`

func TestFileSource_FetchRawRecords(t *testing.T) {
	Convey("Given a directory holding one scraped model file", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		err := os.WriteFile(filepath.Join(dir, "acme_falcon-9b.json"), []byte(scrapeFile), 0o600)
		So(err, ShouldBeNil)
		src := source.NewFileSource(dir)

		Convey("When fetching records for the scraped model", func() {
			records, err := src.FetchRawRecords(ctx, "acme/falcon-9b")

			Convey("Then each benchmark entry becomes a reported raw record", func() {
				So(err, ShouldBeNil)
				So(len(records), ShouldEqual, 2)
				So(records[0]["model_id"], ShouldEqual, "acme/falcon-9b")
				So(records[0]["benchmark"], ShouldEqual, "MMLU")
				So(records[0]["source"], ShouldEqual, "REPORTED")
				So(records[0]["observed_at"], ShouldEqual, "2026-08-01T12:00:00Z")
			})

			Convey("And optional fields survive untouched", func() {
				So(records[1]["metric"], ShouldEqual, "pass@1")
				So(records[1]["value"], ShouldEqual, "41%")
				So(records[1]["dataset"], ShouldEqual, "humaneval-base")
			})
		})

		Convey("When fetching an unscraped model", func() {
			_, err := src.FetchRawRecords(ctx, "acme/unknown")

			Convey("Then it reports ErrNotScraped", func() {
				So(err, ShouldWrap, source.ErrNotScraped)
			})
		})

		Convey("When the scrape file is malformed", func() {
			err := os.WriteFile(filepath.Join(dir, "acme_broken.json"), []byte("{nope"), 0o600)
			So(err, ShouldBeNil)

			_, err = src.FetchRawRecords(ctx, "acme/broken")

			Convey("Then it reports ErrBadPayload", func() {
				So(err, ShouldWrap, source.ErrBadPayload)
			})
		})

		Convey("When the context is already canceled", func() {
			canceled, cancel := context.WithCancel(ctx)
			cancel()

			_, err := src.FetchRawRecords(canceled, "acme/falcon-9b")

			Convey("Then the cancellation wins", func() {
				So(err, ShouldWrap, context.Canceled)
			})
		})
	})
}
