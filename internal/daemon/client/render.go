package client

import (
	"fmt"
	"io"
)

// RenderTransfers prints the column-padded transfer table the original
// background_client.py's list_transfers produces, or a status line when
// there is nothing to show.
func RenderTransfers(w io.Writer, transfers []TransferSummary, completed bool) {
	if len(transfers) == 0 {
		if completed {
			fmt.Fprintln(w, "No transfers completed")
		} else {
			fmt.Fprintln(w, "No transfers currently active")
		}
		return
	}

	fmt.Fprintln(w, "----------------------------------------------------------------------")
	fmt.Fprintln(w, "Task added             Task status    Task ID")
	fmt.Fprintln(w, "----------------------------------------------------------------------")
	for _, t := range transfers {
		fmt.Fprintf(w, "%s    %-15s%s\n", t.TaskAdded, t.TaskStatus, t.TaskID)
	}
}
