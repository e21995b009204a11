package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ecmwf-go/retriever/internal/apisession"
	"github.com/ecmwf-go/retriever/internal/config"
	"github.com/ecmwf-go/retriever/internal/credentials"
	"github.com/ecmwf-go/retriever/internal/logsink"
	"github.com/ecmwf-go/retriever/internal/orchestrator"
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve --dataset <name> --param key:value [--param key:value...] --target <path>",
	Short: "Submit one request directly and poll it to completion, without a daemon",
	RunE:  runRetrieve,
}

var (
	retrieveDataset string
	retrieveTarget  string
	retrieveParams  []string
)

func init() {
	flags := retrieveCmd.Flags()
	flags.StringVar(&retrieveDataset, "dataset", "", "Service/dataset name, e.g. s2s")
	flags.StringVar(&retrieveTarget, "target", "", "Path to download the completed artifact to")
	flags.StringArrayVar(&retrieveParams, "param", nil, "Request parameter as key:value; repeatable")
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	if retrieveDataset == "" {
		return fmt.Errorf("--dataset is required")
	}
	params, err := paramsToMap(retrieveParams)
	if err != nil {
		return err
	}

	creds, err := credentials.Discover(credentials.Credentials{}, config.CredentialsFilePath())
	if err != nil {
		return err
	}

	log := logsink.New(func(message string, level logsink.Level) {
		fmt.Fprintln(os.Stdout, message)
	})

	ctx := context.Background()
	orch := orchestrator.New(func(ctx context.Context, requestID int) (*apisession.Session, error) {
		return apisession.New(ctx, creds.URL, retrieveDataset, creds.Email, creds.Key, log,
			apisession.WithRequestID(requestID))
	}, log)

	orch.Retrieve(ctx, []orchestrator.Request{{Params: params, Target: retrieveTarget}})
	return nil
}

func paramsToMap(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := splitKV(pair)
		if !ok {
			return nil, fmt.Errorf("invalid --param %q, expected key:value", pair)
		}
		out[key] = value
	}
	return out, nil
}

func splitKV(s string) (key, value string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}
