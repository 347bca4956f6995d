package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/slotsave/pkg/config"
	saveerrors "github.com/jllopis/slotsave/pkg/errors"
	"github.com/jllopis/slotsave/pkg/manager"
	"github.com/jllopis/slotsave/pkg/slot"
	"github.com/jllopis/slotsave/pkg/storage"
	"github.com/jllopis/slotsave/pkg/telemetry"
)

const version = "dev"

type globalFlags struct {
	ConfigArgs []string
	JSON       bool
	Help       bool
}

type app struct {
	stdout io.Writer
	stderr io.Writer
	flags  globalFlags
}

type slotResult struct {
	slot.Metadata
	Entries map[slot.EntryKind]int `json:"entries,omitempty"`
}

type valueResult struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{stdout: os.Stdout, stderr: os.Stderr}
	if err := a.run(ctx, os.Args[1:]); err != nil {
		a.printError(err)
		stop()
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, args []string) error {
	global, rest, err := parseGlobalFlags(args)
	if err != nil {
		return NewInvalidArgumentError("flags", err.Error())
	}
	a.flags = global
	if global.Help || len(rest) == 0 {
		a.printUsage()
		return nil
	}
	switch rest[0] {
	case "help":
		a.printUsage()
		return nil
	case "version":
		fmt.Fprintln(a.stdout, version)
		return nil
	}

	cfg, err := config.LoadWithCLI(global.ConfigArgs)
	if err != nil {
		return NewConfigError(err)
	}
	logger := telemetry.ConfigureSlog(a.stderr, cfg.Log.Level, cfg.Log.Format)

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitWithConfig(ctx, "slotctl", version, telemetry.Config{
			Exporter:     cfg.Telemetry.Exporter,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			OTLPInsecure: cfg.Telemetry.OTLPInsecure,
			Writer:       a.stderr,
		})
		if err != nil {
			return NewConfigError(err)
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	store, closeStore, err := storage.Open(cfg, logger)
	if err != nil {
		return NewConfigError(err)
	}
	defer func() { _ = closeStore() }()

	mgr, err := manager.New(cfg.Save, store, manager.WithLogger(logger))
	if err != nil {
		return NewConfigError(err)
	}

	cmd, cmdArgs := rest[0], rest[1:]
	ctx, span := otel.Tracer("slotsave/slotctl").Start(ctx, "slotctl."+cmd,
		trace.WithAttributes(telemetry.StorageAttributes(cfg.Storage.Backend, cfg.Save.Codec)...))
	defer span.End()

	switch cmd {
	case "list":
		err = a.runList(ctx, mgr, cmdArgs)
	case "show":
		err = a.runShow(ctx, mgr, cmdArgs)
	case "create":
		err = a.runCreate(ctx, mgr, cmdArgs)
	case "delete":
		err = a.runDelete(ctx, mgr, cmdArgs)
	case "kv":
		err = a.runKV(ctx, mgr, cmdArgs)
	default:
		return NewInvalidArgumentError(cmd, fmt.Sprintf("unknown command %q", cmd))
	}
	return WrapError(err)
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	var flags globalFlags

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--json":
			flags.JSON = true
		case arg == "--config" || arg == "--set" || arg == "--profile" || arg == "--env":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for %s", arg)
			}
			flags.ConfigArgs = append(flags.ConfigArgs, arg, args[i+1])
			i++
		case strings.HasPrefix(arg, "--config="), strings.HasPrefix(arg, "--set="),
			strings.HasPrefix(arg, "--profile="), strings.HasPrefix(arg, "--env="):
			flags.ConfigArgs = append(flags.ConfigArgs, arg)
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

func (a *app) runList(ctx context.Context, mgr *manager.Manager, args []string) error {
	cmd := flag.NewFlagSet("list", flag.ContinueOnError)
	cmd.SetOutput(a.stderr)
	where := cmd.String("where", "", "Filter expression over Name, Scene, Created, Played, PlayedSeconds")
	if err := cmd.Parse(args); err != nil {
		return NewInvalidArgumentError("list", err.Error())
	}
	if err := ensureNoArgs(cmd.Args()); err != nil {
		return err
	}
	filter, err := compileSlotFilter(*where)
	if err != nil {
		return err
	}

	slots, err := mgr.ListSlots(ctx)
	if err != nil {
		return err
	}
	if slots, err = filter.apply(slots); err != nil {
		return err
	}
	if a.flags.JSON {
		return a.printJSON(slots)
	}
	if len(slots) == 0 {
		fmt.Fprintln(a.stdout, "no slots")
		return nil
	}
	w := a.newTabWriter()
	writeRow(w, "SLOT", "CREATED", "PLAYED", "SCENE")
	for _, s := range slots {
		writeRow(w, s.SlotName, s.CreationDate, s.TimePlayed, strconv.Itoa(s.CurrentSceneIndex))
	}
	return w.Flush()
}

func (a *app) runShow(ctx context.Context, mgr *manager.Manager, args []string) error {
	name, err := slotArg("show", args)
	if err != nil {
		return err
	}
	meta, ok, err := mgr.GetSlot(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return NewNotFoundError(name)
	}
	counts, err := mgr.SlotEntries(ctx, name)
	if err != nil {
		return err
	}
	res := slotResult{Metadata: meta, Entries: counts}
	if a.flags.JSON {
		return a.printJSON(res)
	}
	w := a.newTabWriter()
	writeRow(w, "slot", meta.SlotName)
	writeRow(w, "created", meta.CreationDate)
	writeRow(w, "played", meta.TimePlayed)
	writeRow(w, "scene", strconv.Itoa(meta.CurrentSceneIndex))
	writeRow(w, "participants", strconv.Itoa(counts[slot.KindParticipant]))
	writeRow(w, "values", strconv.Itoa(counts[slot.KindValue]))
	return w.Flush()
}

func (a *app) runCreate(ctx context.Context, mgr *manager.Manager, args []string) error {
	cmd := flag.NewFlagSet("create", flag.ContinueOnError)
	cmd.SetOutput(a.stderr)
	force := cmd.Bool("force", false, "Overwrite an existing slot")
	if err := cmd.Parse(args); err != nil {
		return NewInvalidArgumentError("create", err.Error())
	}
	name, err := slotArg("create", cmd.Args())
	if err != nil {
		return err
	}
	exists, err := mgr.SlotExists(ctx, name)
	if err != nil {
		return err
	}
	if exists && !*force {
		return NewInvalidArgumentError(name, "slot already exists (use --force to overwrite)")
	}
	meta, err := mgr.CreateSlot(ctx, name)
	if err != nil {
		return err
	}
	if a.flags.JSON {
		return a.printJSON(meta)
	}
	fmt.Fprintf(a.stdout, "created %s\n", meta.SlotName)
	return nil
}

func (a *app) runDelete(ctx context.Context, mgr *manager.Manager, args []string) error {
	name, err := slotArg("delete", args)
	if err != nil {
		return err
	}
	exists, err := mgr.SlotExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return NewNotFoundError(name)
	}
	if err := mgr.DeleteSlot(ctx, name); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "deleted %s\n", name)
	return nil
}

func (a *app) runKV(ctx context.Context, mgr *manager.Manager, args []string) error {
	if len(args) == 0 {
		return NewInvalidArgumentError("kv", "usage: slotctl kv <slot> [list|get|set|del]")
	}
	name := args[0]
	action := "list"
	if len(args) > 1 {
		action = args[1]
	}
	var actionArgs []string
	if len(args) > 2 {
		actionArgs = args[2:]
	}

	ok, err := mgr.SetActiveSlot(ctx, name, false, true)
	if err != nil {
		return err
	}
	if !ok {
		return NewNotFoundError(name)
	}
	store := mgr.KV()

	switch action {
	case "list":
		values := store.Snapshot()
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		results := make([]valueResult, 0, len(keys))
		for _, k := range keys {
			results = append(results, scalarResult(k, values[k]))
		}
		if a.flags.JSON {
			return a.printJSON(results)
		}
		w := a.newTabWriter()
		writeRow(w, "KEY", "TYPE", "VALUE")
		for _, r := range results {
			writeRow(w, r.Key, r.Type, r.Value)
		}
		return w.Flush()
	case "get":
		if len(actionArgs) != 1 {
			return NewInvalidArgumentError("kv get", "usage: slotctl kv <slot> get <key>")
		}
		v, ok := store.Snapshot()[actionArgs[0]]
		if !ok {
			return NewCLIError(
				saveerrors.New(saveerrors.CodeNotFound, fmt.Sprintf("key '%s' not found", actionArgs[0]), nil).
					WithContext("slot", name),
				fmt.Sprintf("run 'slotctl kv %s list' to see the stored keys", name))
		}
		res := scalarResult(actionArgs[0], v)
		if a.flags.JSON {
			return a.printJSON(res)
		}
		fmt.Fprintln(a.stdout, res.Value)
		return nil
	case "set":
		cmd := flag.NewFlagSet("kv set", flag.ContinueOnError)
		cmd.SetOutput(a.stderr)
		typ := cmd.String("type", "string", "Value type: int, float or string")
		if err := cmd.Parse(actionArgs); err != nil {
			return NewInvalidArgumentError("kv set", err.Error())
		}
		if cmd.NArg() != 2 {
			return NewInvalidArgumentError("kv set", "usage: slotctl kv <slot> set [--type T] <key> <value>")
		}
		key, raw := cmd.Arg(0), cmd.Arg(1)
		switch *typ {
		case "int":
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return NewInvalidArgumentError(raw, "not an integer")
			}
			store.SetInt(key, v)
		case "float":
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return NewInvalidArgumentError(raw, "not a float")
			}
			if err := store.SetFloat(key, v); err != nil {
				return NewInvalidArgumentError(raw, "float must be finite")
			}
		case "string":
			store.SetString(key, raw)
		default:
			return NewInvalidArgumentError("--type", fmt.Sprintf("unknown type %q", *typ))
		}
		return mgr.Save(ctx)
	case "del":
		if len(actionArgs) != 1 {
			return NewInvalidArgumentError("kv del", "usage: slotctl kv <slot> del <key>")
		}
		store.DeleteKey(actionArgs[0])
		return mgr.Save(ctx)
	default:
		return NewInvalidArgumentError(action, fmt.Sprintf("unknown kv action %q", action))
	}
}

func scalarResult(key string, v slot.Scalar) valueResult {
	res := valueResult{Key: key, Type: string(v.Type)}
	switch v.Type {
	case slot.ScalarInt:
		res.Value = strconv.FormatInt(v.Int, 10)
	case slot.ScalarFloat:
		res.Value = strconv.FormatFloat(v.Float, 'g', -1, 64)
	default:
		res.Value = v.String
	}
	return res
}

func slotArg(cmd string, args []string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", NewInvalidArgumentError(cmd, fmt.Sprintf("usage: slotctl %s <slot>", cmd))
	}
	return args[0], nil
}

func ensureNoArgs(args []string) error {
	if len(args) > 0 {
		return NewInvalidArgumentError(strings.Join(args, " "), fmt.Sprintf("unexpected args: %v", args))
	}
	return nil
}

func (a *app) printJSON(value any) error {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, string(payload))
	return nil
}

func (a *app) printError(err error) {
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		cliErr.PrintError(a.stderr, a.flags.JSON)
		return
	}
	PrintSimpleError(a.stderr, err, a.flags.JSON)
}

func (a *app) newTabWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(a.stdout, 0, 8, 2, ' ', 0)
}

func writeRow(writer *tabwriter.Writer, cols ...string) {
	for i, col := range cols {
		cols[i] = normalizeCell(col)
	}
	fmt.Fprintln(writer, strings.Join(cols, "\t"))
}

func normalizeCell(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return strings.Join(strings.Fields(value), " ")
}

func (a *app) printUsage() {
	fmt.Fprintln(a.stdout, `slotctl inspects and edits save slots

Usage:
  slotctl [global flags] <command> [args]

Global flags:
  --config <path>      Path to a YAML config file
  --profile <name>     Overlay {config}.{name}.yaml (alias --env)
  --set key=value      Override config (repeatable)
  --json               JSON output

Commands:
  list [--where <expr>]
  show <slot>
  create [--force] <slot>
  delete <slot>
  kv <slot> [list]
  kv <slot> get <key>
  kv <slot> set [--type int|float|string] <key> <value>
  kv <slot> del <key>
  version`)
}
