package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/vadim/chatlogs/internal/domain/chatlog/policy"
	"github.com/vadim/chatlogs/internal/domain/chatlog/service"
)

const rule = "============================================================================"

func writeSyncSummary(w io.Writer, out *policy.SyncOutput) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, rule)
	fmt.Fprintln(tw, "= Finished syncing chat logs.")
	writeIngestLines(tw, out.Ingest)
	writeReconcileLines(tw, out.Reconcile)
	if out.LatestURL != "" {
		fmt.Fprintf(tw, "== Latest conversation:\t%d\t%s\n", out.LatestConversationID, out.LatestURL)
	}
	fmt.Fprintln(tw, rule)
	return tw.Flush()
}

func writeIngestSummary(w io.Writer, out *service.IngestResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, rule)
	fmt.Fprintln(tw, "= Finished ingesting chat logs.")
	writeIngestLines(tw, out)
	fmt.Fprintln(tw, rule)
	return tw.Flush()
}

func writeReconcileSummary(w io.Writer, out *service.ReconcileResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, rule)
	fmt.Fprintln(tw, "= Finished cleaning conversations.")
	writeReconcileLines(tw, out)
	fmt.Fprintln(tw, rule)
	return tw.Flush()
}

func writeIngestLines(w io.Writer, out *service.IngestResult) {
	fmt.Fprintf(w, "== Inserted messages:\t%s\n", humanize.Comma(int64(out.Inserted)))
	fmt.Fprintf(w, "== Skipped empty messages:\t%s\n", humanize.Comma(int64(out.Skipped)))
	fmt.Fprintf(w, "== Malformed senders:\t%s\n", humanize.Comma(int64(out.Malformed)))
	fmt.Fprintf(w, "== New conversations:\t%s\n", humanize.Comma(int64(out.NewConversations)))
	fmt.Fprintf(w, "== New participants:\t%s\n", humanize.Comma(int64(out.NewParticipants)))
}

func writeReconcileLines(w io.Writer, out *service.ReconcileResult) {
	for _, source := range slices.Sorted(maps.Keys(out.Moved)) {
		fmt.Fprintf(w, "\tOrphan:\t%d => %d\n", source, out.Moved[source])
	}
	fmt.Fprintf(w, "== Updated message counts:\t%s\n", humanize.Comma(int64(out.MessageCounts)))
	fmt.Fprintf(w, "== Updated timeend values:\t%s\n", humanize.Comma(int64(out.EndTimes)))
	fmt.Fprintf(w, "== Orphaned conversations:\t%s\n", humanize.Comma(int64(out.Orphaned)))
}
