package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/internal/storage/sqlite"
)

var commands = []subcommands.Command{
	&debtsCmd{},
	&balancesCmd{},
	&trashCmd{},
}

// listFlags are shared by every command: the database and the list to read.
type listFlags struct {
	db     string
	listID string
}

func (l *listFlags) set(f *flag.FlagSet) {
	db := os.Getenv("DB_PATH")
	if db == "" {
		db = "./data/ledger.db"
	}
	f.StringVar(&l.db, "db", db, "Path to the SQLite database (default $DB_PATH).")
	f.StringVar(&l.listID, "list", "", "ID of the expense list.")
}

// open returns the store and the list, or an exit status on failure.
func (l *listFlags) open(ctx context.Context) (*sqlite.SQLiteStore, *models.ExpenseList, subcommands.ExitStatus) {
	if l.listID == "" {
		fmt.Fprintln(os.Stderr, "-list is required")
		return nil, nil, subcommands.ExitUsageError
	}
	if _, err := os.Stat(l.db); err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		return nil, nil, subcommands.ExitFailure
	}
	store, err := sqlite.New(l.db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		return nil, nil, subcommands.ExitFailure
	}
	list, err := store.GetList(ctx, l.listID)
	if err != nil {
		store.Close()
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, subcommands.ExitFailure
	}
	return store, list, subcommands.ExitSuccess
}

type debtsCmd struct {
	listFlags
	user string
}

func (*debtsCmd) Name() string     { return "debts" }
func (*debtsCmd) Synopsis() string { return "print the netted debts of a list" }
func (*debtsCmd) Usage() string {
	return `ledgerctl debts -list <id> [-db <path>] [-user <username>]

  Prints who owes whom after pairwise netting of the active expenses.
`
}

func (c *debtsCmd) SetFlags(f *flag.FlagSet) {
	c.listFlags.set(f)
	f.StringVar(&c.user, "user", "", "Only show debts involving this registered user.")
}

func (c *debtsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	store, list, status := c.open(ctx)
	if status != subcommands.ExitSuccess {
		return status
	}
	defer store.Close()

	expenses, err := store.ListExpenses(ctx, storage.ExpenseFilter{ListID: list.ID})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	raw, err := calculator.BuildRawGraph(expenses)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	edges := calculator.Net(raw)
	if c.user != "" {
		edges = calculator.Involving(edges, models.Registered(c.user))
	}

	printDebts(os.Stdout, list, edges)
	return subcommands.ExitSuccess
}

func printDebts(w io.Writer, list *models.ExpenseList, edges []models.DebtEdge) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "DEBTOR\tCREDITOR\tAMOUNT\n")
	for _, e := range edges {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Debtor, e.Creditor, money.Display(e.Amount, list.Currency))
	}
	tw.Flush()
}

type balancesCmd struct {
	listFlags
}

func (*balancesCmd) Name() string     { return "balances" }
func (*balancesCmd) Synopsis() string { return "print paid, owed and net totals per participant" }
func (*balancesCmd) Usage() string {
	return `ledgerctl balances -list <id> [-db <path>]
`
}

func (c *balancesCmd) SetFlags(f *flag.FlagSet) {
	c.listFlags.set(f)
}

func (c *balancesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	store, list, status := c.open(ctx)
	if status != subcommands.ExitSuccess {
		return status
	}
	defer store.Close()

	expenses, err := store.ListExpenses(ctx, storage.ExpenseFilter{ListID: list.ID})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	balances, err := calculator.CalculateBalances(expenses, list.Participants())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	printBalances(os.Stdout, list, balances)
	return subcommands.ExitSuccess
}

func printBalances(w io.Writer, list *models.ExpenseList, balances []models.Balance) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "PARTICIPANT\tPAID\tOWED\tNET\n")
	for _, b := range balances {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.Participant,
			money.Format(b.TotalPaid, list.Currency),
			money.Format(b.TotalOwed, list.Currency),
			money.Format(b.NetBalance, list.Currency))
	}
	tw.Flush()
}

type trashCmd struct {
	listFlags
}

func (*trashCmd) Name() string     { return "trash" }
func (*trashCmd) Synopsis() string { return "print the soft-deleted expenses of a list" }
func (*trashCmd) Usage() string {
	return `ledgerctl trash -list <id> [-db <path>]
`
}

func (c *trashCmd) SetFlags(f *flag.FlagSet) {
	c.listFlags.set(f)
}

func (c *trashCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	store, list, status := c.open(ctx)
	if status != subcommands.ExitSuccess {
		return status
	}
	defer store.Close()

	expenses, err := store.ListExpenses(ctx, storage.ExpenseFilter{ListID: list.ID, Deleted: true})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	printTrash(os.Stdout, list, expenses)
	return subcommands.ExitSuccess
}

func printTrash(w io.Writer, list *models.ExpenseList, expenses []models.Expense) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tDATE\tPAYER\tAMOUNT\tDELETED\tDESCRIPTION\n")
	for _, e := range expenses {
		deleted := ""
		if e.DeletedAt != nil {
			deleted = e.DeletedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Date, e.Payer, money.Display(e.Amount, list.Currency), deleted, e.Description)
	}
	tw.Flush()
}
