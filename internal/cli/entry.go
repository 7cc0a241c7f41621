package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/docketcache/cache"
	"github.com/jonwraymond/docketcache/store"
)

func newGetCmd(a *app) *cobra.Command {
	var (
		group string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print a cached value",
		Long:  "Print the value stored under key. Strings print as-is; everything else prints as JSON.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := a.entryKey(args[0], group)
			if err != nil {
				return err
			}
			v, ok := a.cache.Get(cmd.Context(), key, group, force)
			if !ok {
				return fmt.Errorf("%s/%s: %w", groupName(group), key, ErrNotFound)
			}
			out, err := formatValue(v)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&group, "group", cache.DefaultGroup, "entry group")
	cmd.Flags().BoolVar(&force, "force", false, "reread the store")
	return cmd
}

func newSetCmd(a *app) *cobra.Command {
	var (
		group  string
		ttl    time.Duration
		asJSON bool
		mode   string
	)

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a value",
		Example: `  docketcache set greeting hello
  docketcache set counters '{"views":3}' --json --ttl 10m
  docketcache set lock 1 --mode add`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := a.entryKey(args[0], group)
			if err != nil {
				return err
			}

			var value any = args[1]
			if asJSON {
				if value, err = parseJSON(args[1]); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			var stored bool
			switch mode {
			case "set":
				stored = a.cache.Set(ctx, key, value, group, ttl)
			case "add":
				stored = a.cache.Add(ctx, key, value, group, ttl)
			case "replace":
				stored = a.cache.Replace(ctx, key, value, group, ttl)
			default:
				return fmt.Errorf("unknown mode %q (want set, add or replace)", mode)
			}
			if !stored {
				return fmt.Errorf("%s/%s: %s refused", groupName(group), key, mode)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "stored")
			return nil
		},
	}

	cmd.Flags().StringVar(&group, "group", cache.DefaultGroup, "entry group")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "time to live (0 = no expiry unless max_ttl applies)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "parse the value as JSON")
	cmd.Flags().StringVar(&mode, "mode", "set", "set, add or replace")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:     "delete <key>",
		Aliases: []string{"del", "rm"},
		Short:   "Remove a value",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := a.entryKey(args[0], group)
			if err != nil {
				return err
			}
			if !a.cache.Delete(cmd.Context(), key, group) {
				return fmt.Errorf("%s/%s: %w", groupName(group), key, ErrNotFound)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted")
			return nil
		},
	}

	cmd.Flags().StringVar(&group, "group", cache.DefaultGroup, "entry group")
	return cmd
}

func newCounterCmd(a *app, op string) *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   op + " <key> [offset]",
		Short: map[string]string{"incr": "Increment a counter", "decr": "Decrement a counter"}[op],
		Long:  "Adjust a stored counter by offset (default 1). Non-numeric values count as 0 and the result never drops below 0.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := a.entryKey(args[0], group)
			if err != nil {
				return err
			}
			offset := int64(1)
			if len(args) == 2 {
				if offset, err = strconv.ParseInt(args[1], 10, 64); err != nil {
					return fmt.Errorf("offset %q: %w", args[1], err)
				}
			}

			adjust := a.cache.Incr
			if op == "decr" {
				adjust = a.cache.Decr
			}
			n, ok := adjust(cmd.Context(), key, offset, group)
			if !ok {
				return fmt.Errorf("%s/%s: %w", groupName(group), key, ErrNotFound)
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}

	cmd.Flags().StringVar(&group, "group", cache.DefaultGroup, "entry group")
	return cmd
}

func groupName(group string) string {
	if group == "" {
		return cache.DefaultGroup
	}
	return group
}

// parseJSON decodes s keeping integers as int64.
func parseJSON(s string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("parse value: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("parse value: trailing data")
	}
	return fromNumbers(v), nil
}

func fromNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case []any:
		for i := range val {
			val[i] = fromNumbers(val[i])
		}
		return val
	case map[string]any:
		for k := range val {
			val[k] = fromNumbers(val[k])
		}
		return val
	}
	return v
}

// formatValue renders a cached value for the terminal.
func formatValue(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case *store.Object:
		v = objectView(val)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render value: %w", err)
	}
	return string(data), nil
}

func objectView(o *store.Object) map[string]any {
	m := make(map[string]any, len(o.Fields)+1)
	for _, f := range o.Fields {
		if obj, ok := f.Value.(*store.Object); ok {
			m[f.Name] = objectView(obj)
			continue
		}
		m[f.Name] = f.Value
	}
	m["@type"] = o.Type
	return m
}
