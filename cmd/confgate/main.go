package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentjido/confgate/pkg/archive"
	"github.com/agentjido/confgate/pkg/candidate"
	"github.com/agentjido/confgate/pkg/config"
	"github.com/agentjido/confgate/pkg/confidence"
	"github.com/agentjido/confgate/pkg/crypto"
	"github.com/agentjido/confgate/pkg/difficulty"
	"github.com/agentjido/confgate/pkg/gate"
	"github.com/agentjido/confgate/pkg/generate"
	"github.com/agentjido/confgate/pkg/generation"
	"github.com/agentjido/confgate/pkg/logging"
	"github.com/agentjido/confgate/pkg/pipeline"
	"github.com/agentjido/confgate/pkg/policy"
	"github.com/agentjido/confgate/pkg/receipt"
	"github.com/agentjido/confgate/pkg/schema"
	"github.com/agentjido/confgate/pkg/similarity"
	"github.com/agentjido/confgate/pkg/telemetry"
)

var (
	configFile    string
	logLevelFlag  string
	logFormatFlag string

	cfg *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "confgate",
		Short: "Confidence-calibrated routing gate for generated answers",
		Long: `Confgate sits between an answer generator and its consumers. It selects
	one candidate answer, classifies the calibrated confidence into a band,
	and applies the band's action: return directly, append a verification
	or citation notice, abstain, or escalate for human review.`,
		PersistentPreRunE: initRoot,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "log format (text, json)")

	rootCmd.AddCommand(routeCmd())
	rootCmd.AddCommand(selectCmd())
	rootCmd.AddCommand(estimateCmd())
	rootCmd.AddCommand(similarityCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(presetsCmd())
	rootCmd.AddCommand(receiptCmd())
	rootCmd.AddCommand(verifyCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initRoot(cmd *cobra.Command, args []string) error {
	var err error
	if configFile != "" {
		cfg, err = config.LoadFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	levelStr := cfg.Logging.Level
	if logLevelFlag != "" {
		levelStr = logLevelFlag
	}
	format := cfg.Logging.Format
	if logFormatFlag != "" {
		format = logFormatFlag
	}
	level, err := logging.ParseLevel(levelStr)
	if err != nil {
		return err
	}
	logging.Init(level, format)
	return nil
}

func routeCmd() *cobra.Command {
	var candidatesFile string
	var answers []string
	var confidenceScore float64
	var methodFlag string
	var strategyFlag string
	var presetFlag string
	var archiveFlag bool
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "route [query]",
		Short: "Route candidate answers through the calibration gate",
		Long: `Selects one candidate answer, classifies the calibrated confidence into
	a band, and applies the band's action.

	Candidates come from a JSON file (--candidates) or inline (--answer,
	repeatable). Inline answers carry no scores, so pair them with an
	order-based strategy such as first or vote.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := args[0]
			if !cmd.Flags().Changed("confidence") {
				return fmt.Errorf("--confidence is required")
			}

			candidates, err := loadCandidates(candidatesFile, answers)
			if err != nil {
				return err
			}
			genResult, err := generation.New(candidates)
			if err != nil {
				return err
			}

			strategy, err := resolveStrategy(strategyFlag)
			if err != nil {
				return err
			}
			selected := genResult.SelectByStrategy(strategy)
			if selected == nil {
				return fmt.Errorf("strategy %s selected no candidate (unscored candidates need first, last, or vote)", strategy)
			}

			estimate, err := confidence.New(confidenceScore, methodFlag)
			if err != nil {
				return err
			}

			sink := telemetrySink()
			g, err := buildGate(presetFlag, sink)
			if err != nil {
				return err
			}

			result, err := g.Route(selected, estimate)
			if err != nil {
				return err
			}

			if archiveFlag {
				store, err := openArchive()
				if err != nil {
					return err
				}
				defer store.Close()
				d, err := store.StoreDecision(result, archive.DecisionMeta{
					Query:           query,
					Preset:          presetFlag,
					GateFingerprint: g.Fingerprint(),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Archived decision %s\n", d.ID)
			}

			if jsonFlag {
				return printJSON(result)
			}

			fmt.Fprintf(os.Stderr, "Action: %s (confidence %.3f, level %s)\n",
				result.Action, result.OriginalScore, result.ConfidenceLevel)
			if result.Candidate != nil {
				fmt.Println(result.Candidate.Content)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&candidatesFile, "candidates", "", "JSON file with candidate answers")
	cmd.Flags().StringArrayVar(&answers, "answer", nil, "inline candidate answer (repeatable)")
	cmd.Flags().Float64Var(&confidenceScore, "confidence", 0, "calibrated confidence score in [0,1] (required)")
	cmd.Flags().StringVar(&methodFlag, "method", "logprobs", "confidence estimation method")
	cmd.Flags().StringVar(&strategyFlag, "strategy", "", "selection strategy (best, first, last, vote)")
	cmd.Flags().StringVar(&presetFlag, "preset", "", "gate preset (strict, balanced, permissive)")
	cmd.Flags().BoolVar(&archiveFlag, "archive", false, "archive the decision")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "emit the routing result as JSON")

	return cmd
}

func selectCmd() *cobra.Command {
	var candidatesFile string
	var strategyFlag string
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "select",
		Short: "Select one candidate answer without routing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if candidatesFile == "" {
				return fmt.Errorf("candidates file is required")
			}

			candidates, err := generate.LoadFile(candidatesFile)
			if err != nil {
				return err
			}
			genResult, err := generation.New(candidates)
			if err != nil {
				return err
			}

			strategy, err := resolveStrategy(strategyFlag)
			if err != nil {
				return err
			}
			selected := genResult.SelectByStrategy(strategy)
			if selected == nil {
				return fmt.Errorf("strategy %s selected no candidate (unscored candidates need first, last, or vote)", strategy)
			}

			fmt.Fprintf(os.Stderr, "Selected 1 of %d candidates (strategy %s, %d tokens total)\n",
				genResult.Len(), strategy, genResult.TotalTokens())

			if jsonFlag {
				return printJSON(selected)
			}
			fmt.Println(selected.Content)
			return nil
		},
	}

	cmd.Flags().StringVar(&candidatesFile, "candidates", "", "JSON file with candidate answers (required)")
	cmd.Flags().StringVar(&strategyFlag, "strategy", "", "selection strategy (best, first, last, vote)")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "emit the selected candidate as JSON")

	return cmd
}

func estimateCmd() *cobra.Command {
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "estimate [query]",
		Short: "Estimate query difficulty with the lexical heuristic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			est, err := difficulty.NewHeuristic().Estimate(context.Background(), args[0])
			if err != nil {
				return err
			}

			if jsonFlag {
				return printJSON(est)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "LEVEL\t%s\n", est.Level)
			if est.Score != nil {
				fmt.Fprintf(w, "SCORE\t%.3f\n", *est.Score)
			}
			if est.Confidence != nil {
				fmt.Fprintf(w, "CONFIDENCE\t%.3f\n", *est.Confidence)
			}
			if est.Reasoning != "" {
				fmt.Fprintf(w, "REASONING\t%s\n", est.Reasoning)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonFlag, "json", false, "emit the estimate as JSON")

	return cmd
}

func similarityCmd() *cobra.Command {
	var jaccardWeight float64
	var editWeight float64
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "similarity [a] [b]",
		Short: "Compare two answers with lexical similarity metrics",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, b := args[0], args[1]

			jac := similarity.Jaccard(a, b)
			dist := similarity.Levenshtein(a, b)
			edit := similarity.LevenshteinSimilarity(a, b)
			combined := similarity.Combined(a, b, jaccardWeight, editWeight)

			if jsonFlag {
				return printJSON(map[string]any{
					"jaccard":                jac,
					"levenshtein_distance":   dist,
					"levenshtein_similarity": edit,
					"combined":               combined,
				})
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "JACCARD\t%.4f\n", jac)
			fmt.Fprintf(w, "LEVENSHTEIN DISTANCE\t%d\n", dist)
			fmt.Fprintf(w, "LEVENSHTEIN SIMILARITY\t%.4f\n", edit)
			fmt.Fprintf(w, "COMBINED\t%.4f\n", combined)
			return w.Flush()
		},
	}

	cmd.Flags().Float64Var(&jaccardWeight, "jaccard-weight", 0.5, "weight of the Jaccard score in the combined metric")
	cmd.Flags().Float64Var(&editWeight, "edit-weight", 0.5, "weight of the edit similarity in the combined metric")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "emit the metrics as JSON")

	return cmd
}

func runCmd() *cobra.Command {
	var manifestFile string
	var outFlag string
	var concurrency int
	var noArchive bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Route a batch manifest",
		Long: `Routes every item of a YAML manifest through its gate, archiving each
	decision and writing a run bundle with per-item decision records.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if manifestFile == "" {
				return fmt.Errorf("manifest file is required")
			}

			m, err := pipeline.LoadManifest(manifestFile)
			if err != nil {
				return err
			}

			sink := telemetrySink()
			g, err := buildGate("", sink)
			if err != nil {
				return err
			}

			var store *archive.Store
			if !noArchive {
				store, err = openArchive()
				if err != nil {
					return err
				}
				defer store.Close()
			}

			evidenceDir := outFlag
			if evidenceDir == "" {
				evidenceDir = filepath.Join(cfg.ConfigDir, "runs")
			}

			result, err := pipeline.Run(context.Background(), m, pipeline.RunOptions{
				ManifestPath: manifestFile,
				EvidenceDir:  evidenceDir,
				Concurrency:  concurrency,
				Gate:         g,
				Archive:      store,
				Sink:         sink,
				Logger:       logging.New("pipeline"),
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ITEM\tACTION\tLEVEL\tSCORE\tTOKENS\tSTATUS")
			for _, item := range result.Items {
				if item.Err != nil {
					fmt.Fprintf(w, "%s\t-\t-\t-\t%d\terror: %v\n", item.ItemID, item.TokensUsed, item.Err)
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%.3f\t%d\tok\n",
					item.ItemID, item.Routing.Action, item.Routing.ConfidenceLevel,
					item.Routing.OriginalScore, item.TokensUsed)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "Run %s complete. Evidence: %s\n", result.RunID, result.EvidenceDir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&manifestFile, "file", "f", "", "manifest path (required)")
	cmd.Flags().StringVar(&outFlag, "out", "", "run bundle base directory (default <config dir>/runs)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "max items routed in parallel (default 4)")
	cmd.Flags().BoolVar(&noArchive, "no-archive", false, "skip the decision archive")

	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [manifest.yaml]",
		Short: "Validate a batch manifest",
		Long:  "Validates manifest YAML without routing.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := pipeline.LoadManifest(args[0])
			if err != nil {
				return err
			}
			if err := m.Validate(policy.NewRegistry()); err != nil {
				return err
			}
			fmt.Println("Manifest is valid.")
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var actionFlag string
	var levelFlag string
	var limitFlag int
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent routing decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openArchive()
			if err != nil {
				return err
			}
			defer store.Close()

			routes, err := store.Index().History(archive.HistoryFilter{
				Action: actionFlag,
				Level:  levelFlag,
				Limit:  limitFlag,
			})
			if err != nil {
				return err
			}

			if jsonFlag {
				return printJSON(routes)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tROUTED AT\tACTION\tLEVEL\tSCORE")
			for _, r := range routes {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.3f\n",
					r.ID, r.RoutedAt.Format(time.RFC3339), r.Action, r.ConfidenceLevel, r.OriginalScore)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&actionFlag, "action", "", "filter by action")
	cmd.Flags().StringVar(&levelFlag, "level", "", "filter by confidence level")
	cmd.Flags().IntVar(&limitFlag, "limit", 0, "max rows (default 20)")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "emit rows as JSON")

	return cmd
}

func presetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List gate presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tHIGH\tLOW\tMEDIUM ACTION\tLOW ACTION\tDESCRIPTION")
			for _, p := range policy.NewRegistry().List() {
				fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%s\t%s\t%s\n",
					p.Name, p.HighThreshold, p.LowThreshold, p.MediumAction, p.LowAction, p.Description)
			}
			return w.Flush()
		},
	}
}

func receiptCmd() *cobra.Command {
	var signFlag bool
	var keyFlag string
	var outFile string

	cmd := &cobra.Command{
		Use:   "receipt [decision-id]",
		Short: "Issue a receipt for an archived decision",
		Long: `Builds a receipt binding the decision record, the archived routing
	result, and the gate fingerprint by content hash. With --sign the
	receipt carries an ed25519 signature over its canonical JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openArchive()
			if err != nil {
				return err
			}
			defer store.Close()

			r, err := receipt.Build(store, args[0])
			if err != nil {
				return err
			}

			if signFlag {
				signer, err := crypto.NewSigner(keysDir(), keyFlag)
				if err != nil {
					return err
				}
				if err := signer.SignReceipt(r); err != nil {
					return err
				}
			}

			var path string
			if outFile != "" {
				data, err := json.MarshalIndent(r, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(outFile, data, 0644); err != nil {
					return err
				}
				path = outFile
			} else {
				path, err = receipt.Save(store, r)
				if err != nil {
					return err
				}
			}

			fmt.Fprintf(os.Stderr, "Receipt saved: %s\n", path)
			return printJSON(r)
		},
	}

	cmd.Flags().BoolVar(&signFlag, "sign", false, "sign the receipt")
	cmd.Flags().StringVar(&keyFlag, "key", "confgate-cli", "signing key id")
	cmd.Flags().StringVar(&outFile, "out", "", "write the receipt to this path instead of the archive")

	return cmd
}

func verifyCmd() *cobra.Command {
	var fileFlag string

	cmd := &cobra.Command{
		Use:   "verify [receipt-id]",
		Short: "Verify a receipt against the archive",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fileFlag == "" && len(args) == 0 {
				return fmt.Errorf("provide a receipt id or --file")
			}

			store, err := openArchive()
			if err != nil {
				return err
			}
			defer store.Close()

			var r *schema.Receipt
			if fileFlag != "" {
				data, err := os.ReadFile(fileFlag)
				if err != nil {
					return err
				}
				r = &schema.Receipt{}
				if err := json.Unmarshal(data, r); err != nil {
					return fmt.Errorf("parse receipt file %s: %w", fileFlag, err)
				}
			} else {
				r, err = receipt.Load(store, args[0])
				if err != nil {
					return err
				}
			}

			if err := receipt.Verify(store, r); err != nil {
				return err
			}

			if r.Signature != nil {
				if err := crypto.VerifyReceiptSignature(keysDir(), r); err != nil {
					return err
				}
				fmt.Println("Receipt verified (signature valid).")
				return nil
			}
			fmt.Println("Receipt verified.")
			return nil
		},
	}

	cmd.Flags().StringVar(&fileFlag, "file", "", "verify a receipt file instead of a saved receipt id")

	return cmd
}

func loadCandidates(file string, answers []string) ([]*candidate.Candidate, error) {
	if file != "" && len(answers) > 0 {
		return nil, fmt.Errorf("--candidates and --answer are mutually exclusive")
	}
	if file != "" {
		return generate.LoadFile(file)
	}
	if len(answers) == 0 {
		return nil, fmt.Errorf("provide --candidates or at least one --answer")
	}
	out := make([]*candidate.Candidate, 0, len(answers))
	for _, a := range answers {
		out = append(out, candidate.New(a))
	}
	return out, nil
}

func resolveStrategy(flag string) (generation.Strategy, error) {
	if flag != "" {
		return generation.ParseStrategy(flag)
	}
	return cfg.Strategy()
}

func buildGate(presetName string, sink telemetry.Sink) (*gate.Gate, error) {
	var opts []gate.Option
	if sink != nil {
		opts = append(opts, gate.WithTelemetry(sink))
	}
	if presetName != "" {
		preset, err := policy.NewRegistry().Get(presetName)
		if err != nil {
			return nil, err
		}
		return preset.Gate(opts...)
	}
	return cfg.NewGate(opts...)
}

func telemetrySink() telemetry.Sink {
	if !cfg.TelemetryEnabled() {
		return nil
	}
	sink, err := telemetry.NewFileSink(cfg.Telemetry.Path)
	if err != nil {
		logging.New("cli").Warn("telemetry disabled", "error", err)
		return nil
	}
	return sink
}

func openArchive() (*archive.Store, error) {
	return archive.NewIndexedStore(cfg.Archive.Dir, cfg.IndexPath())
}

func keysDir() string {
	return filepath.Join(cfg.ConfigDir, "keys")
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
