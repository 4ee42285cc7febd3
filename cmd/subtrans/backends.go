package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"subtrans/pkg/registry"
)

func newBackendsCmd(stdout io.Writer) *cobra.Command {
	var config string
	cmd := &cobra.Command{
		Use:   "backends",
		Short: "列出已注册的后端实现与已配置的 provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(config)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "clients: %s\n", strings.Join(registry.BackendClients(), ", "))

			prio := make(map[string]int, len(cfg.Backends))
			for i, n := range cfg.Backends {
				prio[n] = i + 1
			}
			names := make([]string, 0, len(cfg.Provider))
			for n := range cfg.Provider {
				names = append(names, n)
			}
			// 链内按优先级在前，其余按名称
			sort.Slice(names, func(i, j int) bool {
				pi, pj := prio[names[i]], prio[names[j]]
				switch {
				case pi != 0 && pj != 0:
					return pi < pj
				case pi != 0 || pj != 0:
					return pi != 0
				default:
					return names[i] < names[j]
				}
			})
			rows := make([][]string, 0, len(names))
			for _, n := range names {
				p := cfg.Provider[n]
				order := "-"
				if v := prio[n]; v != 0 {
					order = fmt.Sprint(v)
				}
				status := "ok"
				if registry.Backend[p.Client] == nil {
					status = "unknown client"
				}
				rows = append(rows, []string{order, n, p.Client, fmt.Sprint(p.Limits.RPM), fmt.Sprint(p.Limits.MaxBatchChars), status})
			}
			fmt.Fprintln(stdout, renderTable(
				[]string{"priority", "provider", "client", "rpm", "max_batch_chars", "status"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&config, "config", "", "配置文件（.json/.yaml/.toml）")
	return cmd
}
