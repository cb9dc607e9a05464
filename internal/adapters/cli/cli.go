// Package cli implements one-shot operator commands over app.ApplicationService.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"inventory-ledger/internal/app"
	"inventory-ledger/internal/core"

	"github.com/spf13/pflag"
)

// Exit codes. Business-rule failures get one code per error kind.
const (
	ExitOK                = 0
	ExitFailure           = 1
	ExitUsage             = 2
	ExitConflict          = 3
	ExitNotAvailable      = 4
	ExitNotFound          = 5
	ExitInsufficientStock = 6
	ExitImmutableRecord   = 7
	ExitDrift             = 8
)

type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// errDrift is returned by the audit command when balances disagree with the journal.
var errDrift = errors.New("stock balances drift from the journal")

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ue *usageError
	if errors.As(err, &ue) || errors.Is(err, pflag.ErrHelp) {
		return ExitUsage
	}
	if errors.Is(err, errDrift) {
		return ExitDrift
	}
	switch core.KindOf(err) {
	case core.KindValidation:
		return ExitUsage
	case core.KindConflict:
		return ExitConflict
	case core.KindNotAvailable:
		return ExitNotAvailable
	case core.KindNotFound:
		return ExitNotFound
	case core.KindInsufficientStock:
		return ExitInsufficientStock
	case core.KindImmutableRecord:
		return ExitImmutableRecord
	}
	return ExitFailure
}

type command struct {
	usage string
	run   func(ctx context.Context, c *runner, args []string) error
}

var commands = map[string]command{
	"register":    {"register --product ID --inventory-number N [--serial S] [--location ID]", runRegister},
	"show":        {"show ASSET", runShow},
	"issue":       {"issue ASSET --to RECIPIENT [--comment C]", runIssue},
	"return":      {"return (ASSET | --issuance ID) --location ID [--comment C]", runReturn},
	"maintenance": {"maintenance ASSET", runMaintenance},
	"repaired":    {"repaired ASSET --location ID", runRepaired},
	"issuances":   {"issuances [--recipient Q]", runIssuances},
	"receive":     {"receive --product ID --location ID --qty N [--comment C]", runReceive},
	"expense":     {"expense --product ID --location ID --qty N [--comment C]", runExpense},
	"transfer":    {"transfer --product ID --from ID --to ID --qty N [--comment C]", runTransfer},
	"stock":       {"stock --product ID --location ID", runStock},
	"low-stock":   {"low-stock", runLowStock},
	"operations":  {"operations [--product ID] [--type RECEIPT|EXPENSE|TRANSFER] [--limit N]", runOperations},
	"write-off":   {"write-off (ASSET | --product ID --location ID --qty N) --reason R", runWriteOff},
	"write-offs":  {"write-offs --from YYYY-MM-DD --to YYYY-MM-DD", runWriteOffs},
	"audit":       {"audit", runAudit},
}

type runner struct {
	svc    app.ApplicationService
	out    io.Writer
	asJSON bool
}

// Run executes one command and returns its exit code. args excludes the
// program name; the first element is the subcommand. Errors are written to errOut.
func Run(ctx context.Context, svc app.ApplicationService, args []string, out, errOut io.Writer) int {
	err := run(ctx, svc, args, out)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		var ue *usageError
		if errors.As(err, &ue) {
			printUsage(errOut)
		}
	}
	return ExitCode(err)
}

func run(ctx context.Context, svc app.ApplicationService, args []string, out io.Writer) error {
	if len(args) == 0 {
		return usagef("no command given")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return usagef("unknown command %q", args[0])
	}
	asJSON := false
	rest := args[1:]
	for i, a := range rest {
		if a == "--json" {
			asJSON = true
			rest = append(append([]string(nil), rest[:i]...), rest[i+1:]...)
			break
		}
	}
	return cmd.run(ctx, &runner{svc: svc, out: out, asJSON: asJSON}, rest)
}

func printUsage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "usage: inventory COMMAND [--json] [flags]")
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
}

// parse parses flags for one subcommand and returns the positional arguments.
func parse(fs *pflag.FlagSet, args []string) ([]string, error) {
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, usagef("%s: help requested", fs.Name())
		}
		return nil, usagef("%s: %v", fs.Name(), err)
	}
	return fs.Args(), nil
}

func newFlags(name string) *pflag.FlagSet {
	return pflag.NewFlagSet(name, pflag.ContinueOnError)
}

func requirePositive(name string, v int) error {
	if v <= 0 {
		return usagef("--%s is required", name)
	}
	return nil
}

func onePositional(name string, args []string) (string, error) {
	if len(args) != 1 {
		return "", usagef("%s: expected exactly one asset reference, got %d", name, len(args))
	}
	return args[0], nil
}

// ── Assets ────────────────────────────────────────────────────────────────────

func runRegister(ctx context.Context, c *runner, args []string) error {
	fs := newFlags("register")
	var req app.RegisterAssetRequest
	fs.IntVar(&req.ProductID, "product", 0, "durable product ID")
	fs.StringVar(&req.InventoryNumber, "inventory-number", "", "unique inventory number")
	fs.StringVar(&req.SerialNumber, "serial", "", "manufacturer serial number")
	fs.IntVar(&req.LocationID, "location", 0, "initial location ID")
	if _, err := parse(fs, args); err != nil {
		return err
	}
	if err := requirePositive("product", req.ProductID); err != nil {
		return err
	}
	res, err := c.svc.RegisterAsset(ctx, req)
	if err != nil {
		return err
	}
	return c.printAsset(res)
}

func runShow(ctx context.Context, c *runner, args []string) error {
	rest, err := parse(newFlags("show"), args)
	if err != nil {
		return err
	}
	ref, err := onePositional("show", rest)
	if err != nil {
		return err
	}
	res, err := c.svc.GetAsset(ctx, ref)
	if err != nil {
		return err
	}
	return c.printAsset(res)
}

func runIssue(ctx context.Context, c *runner, args []string) error {
	fs := newFlags("issue")
	var req app.IssueAssetRequest
	fs.StringVar(&req.Recipient, "to", "", "recipient")
	fs.StringVar(&req.Comment, "comment", "", "issue comment")
	rest, err := parse(fs, args)
	if err != nil {
		return err
	}
	if req.AssetRef, err = onePositional("issue", rest); err != nil {
		return err
	}
	res, err := c.svc.IssueAsset(ctx, req)
	if err != nil {
		return err
	}
	return c.printIssuance(res)
}

func runReturn(ctx context.Context, c *runner, args []string) error {
	fs := newFlags("return")
	var req app.ReturnAssetRequest
	fs.IntVar(&req.IssuanceID, "issuance", 0, "issuance ID")
	fs.IntVar(&req.LocationID, "location", 0, "location to return to")
	fs.StringVar(&req.Comment, "comment", "", "return comment")
	rest, err := parse(fs, args)
	if err != nil {
		return err
	}
	switch {
	case req.IssuanceID == 0 && len(rest) == 1:
		req.AssetRef = rest[0]
	case req.IssuanceID != 0 && len(rest) == 0:
	default:
		return usagef("return: give either an asset reference or --issuance")
	}
	if err := requirePositive("location", req.LocationID); err != nil {
		return err
	}
	res, err := c.svc.ReturnAsset(ctx, req)
	if err != nil {
		return err
	}
	return c.printIssuance(res)
}

func runMaintenance(ctx context.Context, c *runner, args []string) error {
	rest, err := parse(newFlags("maintenance"), args)
	if err != nil {
		return err
	}
	ref, err := onePositional("maintenance", rest)
	if err != nil {
		return err
	}
	res, err := c.svc.SendToMaintenance(ctx, ref)
	if err != nil {
		return err
	}
	return c.printAsset(res)
}

func runRepaired(ctx context.Context, c *runner, args []string) error {
	fs := newFlags("repaired")
	var req app.CompleteMaintenanceRequest
	fs.IntVar(&req.LocationID, "location", 0, "location to return to")
	rest, err := parse(fs, args)
	if err != nil {
		return err
	}
	if req.AssetRef, err = onePositional("repaired", rest); err != nil {
		return err
	}
	if err := requirePositive("location", req.LocationID); err != nil {
		return err
	}
	res, err := c.svc.CompleteMaintenance(ctx, req)
	if err != nil {
		return err
	}
	return c.printAsset(res)
}

func runIssuances(ctx context.Context, c *runner, args []string) error {
	fs := newFlags("issuances")
	recipient := fs.String("recipient", "", "recipient substring")
	if _, err := parse(fs, args); err != nil {
		return err
	}
	var res *app.IssuanceListResult
	var err error
	if *recipient != "" {
		res, err = c.svc.FindIssuancesByRecipient(ctx, *recipient)
	} else {
		res, err = c.svc.ListActiveIssuances(ctx)
	}
	if err != nil {
		return err
	}
	if c.asJSON {
		return c.json(res.Issuances)
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tASSET\tRECIPIENT\tISSUED\tRETURNED")
	for _, iss := range res.Issuances {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", iss.ID, iss.AssetID, iss.Recipient,
			iss.IssueDate.Format("2006-01-02 15:04"), formatReturn(iss))
	}
	return tw.Flush()
}

// ── Consumable stock ──────────────────────────────────────────────────────────

func movementFlags(name string, req *app.StockMovementRequest) *pflag.FlagSet {
	fs := newFlags(name)
	fs.IntVar(&req.ProductID, "product", 0, "consumable product ID")
	fs.IntVar(&req.LocationID, "location", 0, "location ID")
	fs.IntVar(&req.Quantity, "qty", 0, "quantity")
	fs.StringVar(&req.Comment, "comment", "", "journal comment")
	return fs
}

func checkMovement(req app.StockMovementRequest) error {
	if err := requirePositive("product", req.ProductID); err != nil {
		return err
	}
	return requirePositive("location", req.LocationID)
}

func runReceive(ctx context.Context, c *runner, args []string) error {
	var req app.StockMovementRequest
	if _, err := parse(movementFlags("receive", &req), args); err != nil {
		return err
	}
	if err := checkMovement(req); err != nil {
		return err
	}
	res, err := c.svc.ReceiveStock(ctx, req)
	if err != nil {
		return err
	}
	return c.printOperation(res)
}

func runExpense(ctx context.Context, c *runner, args []string) error {
	var req app.StockMovementRequest
	if _, err := parse(movementFlags("expense", &req), args); err != nil {
		return err
	}
	if err := checkMovement(req); err != nil {
		return err
	}
	res, err := c.svc.ExpendStock(ctx, req)
	if err != nil {
		return err
	}
	return c.printOperation(res)
}

func runTransfer(ctx context.Context, c *runner, args []string) error {
	fs := newFlags("transfer")
	var req app.TransferStockRequest
	fs.IntVar(&req.ProductID, "product", 0, "consumable product ID")
	fs.IntVar(&req.FromLocationID, "from", 0, "source location ID")
	fs.IntVar(&req.ToLocationID, "to", 0, "destination location ID")
	fs.IntVar(&req.Quantity, "qty", 0, "quantity")
	fs.StringVar(&req.Comment, "comment", "", "journal comment")
	if _, err := parse(fs, args); err != nil {
		return err
	}
	for name, v := range map[string]int{"product": req.ProductID, "from": req.FromLocationID, "to": req.ToLocationID} {
		if err := requirePositive(name, v); err != nil {
			return err
		}
	}
	res, err := c.svc.TransferStock(ctx, req)
	if err != nil {
		return err
	}
	return c.printOperation(res)
}

func runStock(ctx context.Context, c *runner, args []string) error {
	fs := newFlags("stock")
	product := fs.Int("product", 0, "product ID")
	location := fs.Int("location", 0, "location ID")
	if _, err := parse(fs, args); err != nil {
		return err
	}
	if err := requirePositive("product", *product); err != nil {
		return err
	}
	if err := requirePositive("location", *location); err != nil {
		return err
	}
	res, err := c.svc.GetStock(ctx, *product, *location)
	if err != nil {
		return err
	}
	if c.asJSON {
		return c.json(res)
	}
	fmt.Fprintf(c.out, "product %d at location %d: %d\n", res.ProductID, res.LocationID, res.Quantity)
	return nil
}

func runLowStock(ctx context.Context, c *runner, args []string) error {
	if _, err := parse(newFlags("low-stock"), args); err != nil {
		return err
	}
	res, err := c.svc.GetLowStock(ctx)
	if err != nil {
		return err
	}
	if c.asJSON {
		return c.json(res.Levels)
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SKU\tPRODUCT\tLOCATION\tQTY\tMIN")
	for _, l := range res.Levels {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d %s\t%d\n", l.SKU, l.ProductName, l.LocationName, l.Quantity, l.Unit, l.MinStock)
	}
	return tw.Flush()
}

func runOperations(ctx context.Context, c *runner, args []string) error {
	fs := newFlags("operations")
	var req app.ListOperationsRequest
	fs.IntVar(&req.ProductID, "product", 0, "product ID")
	fs.StringVar(&req.Type, "type", "", "RECEIPT, EXPENSE or TRANSFER")
	fs.IntVar(&req.Limit, "limit", 50, "maximum rows")
	if _, err := parse(fs, args); err != nil {
		return err
	}
	res, err := c.svc.ListOperations(ctx, req)
	if err != nil {
		return err
	}
	if c.asJSON {
		return c.json(res.Operations)
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tPRODUCT\tQTY\tFROM\tTO\tAT\tCOMMENT")
	for _, op := range res.Operations {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\t%s\t%s\t%s\n", op.ID, op.Type, op.ProductID, op.Quantity,
			formatOptional(op.FromLocationID), formatOptional(op.ToLocationID),
			op.CreatedAt.Format("2006-01-02 15:04"), op.Comment)
	}
	return tw.Flush()
}

// ── Write-offs and audit ──────────────────────────────────────────────────────

func runWriteOff(ctx context.Context, c *runner, args []string) error {
	fs := newFlags("write-off")
	var req app.WriteOffConsumableRequest
	fs.IntVar(&req.ProductID, "product", 0, "consumable product ID")
	fs.IntVar(&req.LocationID, "location", 0, "location ID")
	fs.IntVar(&req.Quantity, "qty", 0, "quantity")
	fs.StringVar(&req.Reason, "reason", "", "write-off reason")
	rest, err := parse(fs, args)
	if err != nil {
		return err
	}

	var res *app.WriteOffResult
	switch {
	case len(rest) == 1 && req.ProductID == 0:
		res, err = c.svc.WriteOffAsset(ctx, app.WriteOffAssetRequest{AssetRef: rest[0], Reason: req.Reason})
	case len(rest) == 0 && req.ProductID != 0:
		if err := requirePositive("location", req.LocationID); err != nil {
			return err
		}
		res, err = c.svc.WriteOffConsumable(ctx, req)
	default:
		return usagef("write-off: give either an asset reference or --product")
	}
	if err != nil {
		return err
	}
	if c.asJSON {
		return c.json(res.WriteOff)
	}
	fmt.Fprintln(c.out, formatWriteOff(*res.WriteOff))
	return nil
}

func runWriteOffs(ctx context.Context, c *runner, args []string) error {
	fs := newFlags("write-offs")
	from := fs.String("from", "", "first day, YYYY-MM-DD")
	to := fs.String("to", "", "last day, YYYY-MM-DD")
	if _, err := parse(fs, args); err != nil {
		return err
	}
	if *from == "" || *to == "" {
		return usagef("write-offs: --from and --to are required")
	}
	res, err := c.svc.ListWriteOffs(ctx, *from, *to)
	if err != nil {
		return err
	}
	if c.asJSON {
		return c.json(res.WriteOffs)
	}
	for _, w := range res.WriteOffs {
		fmt.Fprintln(c.out, formatWriteOff(w))
	}
	return nil
}

func runAudit(ctx context.Context, c *runner, args []string) error {
	if _, err := parse(newFlags("audit"), args); err != nil {
		return err
	}
	res, err := c.svc.ReconcileBalances(ctx)
	if err != nil {
		return err
	}
	if c.asJSON {
		if err := c.json(res.Drifts); err != nil {
			return err
		}
	} else if len(res.Drifts) == 0 {
		fmt.Fprintln(c.out, "balances match the journal")
	} else {
		tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PRODUCT\tLOCATION\tSTORED\tEXPECTED")
		for _, d := range res.Drifts {
			fmt.Fprintf(tw, "%d\t%d\t%d\t%d\n", d.ProductID, d.LocationID, d.Quantity, d.Expected)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if len(res.Drifts) > 0 {
		return errDrift
	}
	return nil
}

// ── Output ────────────────────────────────────────────────────────────────────

func (c *runner) json(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *runner) printAsset(res *app.AssetResult) error {
	if c.asJSON {
		return c.json(res)
	}
	a := res.Asset
	serial := "-"
	if a.SerialNumber != nil {
		serial = *a.SerialNumber
	}
	fmt.Fprintf(c.out, "asset %d  %s  product=%d  serial=%s  status=%s  location=%s\n",
		a.ID, a.InventoryNumber, a.ProductID, serial, a.Status, formatOptional(a.CurrentLocationID))
	for _, iss := range res.Issuances {
		fmt.Fprintf(c.out, "  issuance %d  %s  %s -> %s\n", iss.ID, iss.Recipient,
			iss.IssueDate.Format("2006-01-02"), formatReturn(iss))
	}
	return nil
}

func (c *runner) printIssuance(res *app.IssuanceResult) error {
	if c.asJSON {
		return c.json(res)
	}
	fmt.Fprintf(c.out, "issuance %d  asset %s  %s  status=%s  returned=%s\n", res.Issuance.ID,
		res.Asset.InventoryNumber, res.Issuance.Recipient, res.Asset.Status, formatReturn(*res.Issuance))
	return nil
}

func (c *runner) printOperation(res *app.OperationResult) error {
	if c.asJSON {
		return c.json(res)
	}
	op := res.Operation
	fmt.Fprintf(c.out, "operation %d  %s  product=%d  qty=%d\n", op.ID, op.Type, op.ProductID, op.Quantity)
	for _, b := range res.Balances {
		fmt.Fprintf(c.out, "  location %d balance %d\n", b.LocationID, b.Quantity)
	}
	return nil
}

func formatOptional(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}

func formatReturn(iss core.Issuance) string {
	if iss.ReturnDate == nil {
		return "active"
	}
	return iss.ReturnDate.Format("2006-01-02")
}

func formatWriteOff(w core.WriteOff) string {
	var what string
	switch p := w.Payload.(type) {
	case core.ConsumableWriteOff:
		what = fmt.Sprintf("product=%d qty=%d operation=%d", p.ProductID, p.Quantity, p.StockOperationID)
	case core.AssetWriteOff:
		what = fmt.Sprintf("asset=%d", p.AssetID)
	}
	return strings.TrimSpace(fmt.Sprintf("write-off %d  %s  location=%s  %s  %s", w.ID, what,
		formatOptional(w.LocationID), w.CreatedAt.Format("2006-01-02"), w.Reason))
}
