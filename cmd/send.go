package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meunomeok/leadtrack/internal/dispatch"
	"github.com/meunomeok/leadtrack/internal/tracker"
)

func stringValue(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

var (
	sendURL  string
	sendPath string
	sendData []string
)

// pageFromFlags rebuilds the visited page from --url/--path. Attribution is
// captured from the page URL's query string.
func pageFromFlags(rawURL, path string) dispatch.Page {
	page := dispatch.Page{Path: path, URL: rawURL, Query: url.Values{}}
	if u, err := url.Parse(rawURL); err == nil {
		page.Host = u.Host
		page.Query = u.Query()
		if page.Path == "" {
			page.Path = u.Path
		}
	}
	return page
}

var sendCmd = &cobra.Command{
	Use:   "send <event>",
	Short: "Dispatch one event to all sinks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		extra := map[string]any{}
		for _, kv := range sendData {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return eris.Errorf("malformed --data entry %q, want key=value", kv)
			}
			extra[k] = v
		}

		page := pageFromFlags(sendURL, sendPath)
		env.tracker.Init(ctx, page)

		// The form-completed event is deduped and sanitized by the
		// tracker, so it must not go out as raw engagement data.
		if args[0] == tracker.EventFormCompleted {
			env.tracker.MarkFormCompleted(ctx, page, tracker.LeadInput{
				Name:  stringValue(extra, "name"),
				Email: stringValue(extra, "email"),
				Phone: stringValue(extra, "phone"),
			})
			fmt.Println("ok")
			return nil
		}
		payload := env.tracker.TrackEngagement(ctx, args[0], page, extra)

		out, err := json.MarshalIndent(payload.Flatten(), "", "  ")
		if err != nil {
			return eris.Wrap(err, "encode payload")
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendURL, "url", "", "page URL the event happened on")
	sendCmd.Flags().StringVar(&sendPath, "path", "", "page path (default from --url)")
	sendCmd.Flags().StringArrayVar(&sendData, "data", nil, "event data as key=value (repeatable)")
	rootCmd.AddCommand(sendCmd)
}
