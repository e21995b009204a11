package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ecmwf-go/retriever/internal/daemon/client"
)

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Add, list, and cancel transfers queued against the background daemon",
}

var transferAddCmd = &cobra.Command{
	Use:   "add <key:value,key:value,...|file>",
	Short: "Start a new transfer",
	Long: `Start a new transfer.

The parameters of a new transfer can either be specified on the command
line directly, or entered in a file. When using the command line,
different parameters are separated by commas and each key-value pair is
separated by a colon. When using a file, different parameters are
separated by new lines and each key-value pair is separated by a colon.

The following examples are both valid ways to start the same transfer:

    retriever transfer add class:s2,dataset:s2s,date:2015-01-01,expver:prod,levtype:sfc,origin:ecmf,param:165,step:0/to/1104/by/24,stream:enfo,target:test,time:00,type:cf

or

    retriever transfer add transfer_data.txt

where the file 'transfer_data.txt' would contain:

    class: s2
    dataset: s2s
    date: 2015-01-01
    expver: prod
    levtype: sfc
    origin: ecmf
    param: 165
    step: 0/to/1104/by/24
    stream: enfo
    target: test
    time: 00
    type: cf
`,
	Args: cobra.ExactArgs(1),
	RunE: runTransferAdd,
}

var transferListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the currently active transfers",
	RunE:  runTransferList,
}

var transferListCompletedCmd = &cobra.Command{
	Use:   "list-completed",
	Short: "List the transfers completed since the daemon was started",
	RunE:  runTransferListCompleted,
}

var transferCancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a queued transfer",
	Args:  cobra.ExactArgs(1),
	RunE:  runTransferCancel,
}

func init() {
	transferCmd.AddCommand(transferAddCmd, transferListCmd, transferListCompletedCmd, transferCancelCmd)
}

func runTransferAdd(cmd *cobra.Command, args []string) error {
	params, err := parseTransferData(args[0])
	if err != nil {
		fmt.Println(err.Error())
		return nil
	}

	taskID, err := client.AddTransfer(client.DefaultAddr, params)
	if err != nil {
		fmt.Printf("An error occurred while adding the transfer: %s\n", err.Error())
		return nil
	}
	fmt.Printf("The transfer was successfully added with task_id %s\n", taskID)
	return nil
}

func runTransferCancel(cmd *cobra.Command, args []string) error {
	if err := client.CancelTransfer(client.DefaultAddr, args[0]); err != nil {
		fmt.Printf("An error occurred while cancelling the transfer: %s\n", err.Error())
		return nil
	}
	fmt.Println("The transfer was successfully cancelled")
	return nil
}

func runTransferList(cmd *cobra.Command, args []string) error {
	return listTransfers(false)
}

func runTransferListCompleted(cmd *cobra.Command, args []string) error {
	return listTransfers(true)
}

func listTransfers(completed bool) error {
	transfers, err := client.ListTransfers(client.DefaultAddr, completed)
	if err != nil {
		fmt.Printf("An error occurred while listing transfers: %s\n", err.Error())
		return nil
	}
	client.RenderTransfers(os.Stdout, transfers, completed)
	return nil
}

// parseTransferData reproduces background_client_cli.py's add_transfer
// syntax: either "key:value,key:value" directly on the command line, or
// a path to a file with one "key:value" pair per line.
func parseTransferData(transferData string) (map[string]string, error) {
	transferData = strings.Join(strings.Fields(transferData), "")

	if strings.Contains(transferData, ":") {
		return parseInlineTransferData(transferData)
	}
	return parseTransferFile(transferData)
}

func parseInlineTransferData(transferData string) (map[string]string, error) {
	params := map[string]string{}
	for _, item := range strings.Split(transferData, ",") {
		parts := strings.SplitN(item, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("Incorrect transfer data given, please call 'retriever transfer add --help' for the syntax")
		}
		params[parts[0]] = parts[1]
	}
	return params, nil
}

func parseTransferFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("File '%s' not found", path)
	}
	defer func() { _ = f.Close() }()

	params := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("Incorrect transfer data in file, please call 'retriever transfer add --help' for the syntax")
		}
		params[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return params, nil
}
