// Package console is a line-oriented front end for the sync controller.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"ledgerlite/internal/core"
	applog "ledgerlite/internal/log"
	"ledgerlite/internal/services"
)

const helpText = `Commands:
  login <email> <password>              sign in
  logout                                sign out and forget local data
  list                                  show transactions for the active filter
  add <Income|Expense> <amount> <date|-> <description...>
                                        record a transaction (date - means today)
  delete <id>                           delete a transaction
  filter <start|-> <end|->              set the date range (YYYY-MM-DD, - for open)
  clear                                 remove the date range
  refresh                               reload transactions and report
  report                                show the income statement
  status                                show session, filter and error state
  dismiss                               clear the current error
  help                                  show this text
  quit                                  exit
`

var errQuit = errors.New("quit")

type Console struct {
	ctrl   *services.SyncController
	out    io.Writer
	logger *applog.Logger
}

func New(ctrl *services.SyncController, out io.Writer, logger *applog.Logger) *Console {
	if logger == nil {
		logger = applog.Discard()
	}
	return &Console{
		ctrl:   ctrl,
		out:    out,
		logger: logger.WithComponent(applog.ComponentConsole),
	}
}

// Run reads commands from in until EOF, quit, or ctx is done. Command
// failures are printed and never end the loop.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	c.prompt()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if err := c.Execute(ctx, line); errors.Is(err, errQuit) {
				return nil
			}
			c.prompt()
		}
	}
}

func (c *Console) prompt() {
	fmt.Fprint(c.out, "> ")
}

// Execute runs a single command line.
func (c *Console) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	var err error
	switch cmd {
	case "help", "?":
		fmt.Fprint(c.out, helpText)
	case "quit", "exit":
		return errQuit
	case "login":
		err = c.login(ctx, args)
	case "logout":
		c.ctrl.Logout(ctx)
		fmt.Fprintln(c.out, "Logged out.")
	case "list", "ls":
		c.printList()
	case "add":
		err = c.add(ctx, args)
	case "delete", "rm":
		err = c.delete(ctx, args)
	case "filter":
		err = c.filter(ctx, args)
	case "clear":
		err = c.ctrl.ClearFilter(ctx)
		c.printSummary(err)
	case "refresh":
		err = c.ctrl.Refresh(ctx)
		c.printSummary(err)
	case "report":
		c.printReport()
	case "status":
		c.printStatus()
	case "dismiss":
		c.ctrl.DismissError()
	default:
		err = fmt.Errorf("unknown command %q, try help", cmd)
	}

	if err != nil {
		fmt.Fprintf(c.out, "Error: %s\n", err)
		c.logger.DebugContext(ctx, "Command failed", "command", cmd, applog.FieldError, err.Error())
	}
	return err
}

func (c *Console) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: login <email> <password>")
	}
	id, err := c.ctrl.Login(ctx, core.Credentials{Email: args[0], Password: args[1]})
	if err != nil {
		return err
	}
	name := id.Name
	if name == "" {
		name = id.Email
	}
	fmt.Fprintf(c.out, "Welcome, %s.\n", name)
	c.printSummary(nil)
	return nil
}

func (c *Console) add(ctx context.Context, args []string) error {
	if len(args) < 4 {
		return errors.New("usage: add <Income|Expense> <amount> <date|-> <description...>")
	}
	draft := core.Draft{
		Type:        normalizeType(args[0]),
		Amount:      args[1],
		Description: strings.Join(args[3:], " "),
	}
	if args[2] != "-" {
		draft.Date = args[2]
	}

	tx, err := c.ctrl.Create(ctx, draft)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Added %s %s on %s (%s).\n", tx.Type, tx.Amount.Dollars(), tx.Date, tx.ID)
	c.printSummary(nil)
	return nil
}

func (c *Console) delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: delete <id>")
	}
	if err := c.ctrl.Delete(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Deleted %s.\n", args[0])
	c.printSummary(nil)
	return nil
}

func (c *Console) filter(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: filter <start|-> <end|->")
	}
	rng, err := core.ParseDateRange(openBound(args[0]), openBound(args[1]))
	if err != nil {
		return err
	}
	err = c.ctrl.ApplyFilter(ctx, rng)
	c.printSummary(err)
	return err
}

func (c *Console) printList() {
	st := c.ctrl.Snapshot()
	if len(st.Transactions) == 0 {
		fmt.Fprintln(c.out, "No transactions.")
		return
	}
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tTYPE\tAMOUNT\tDESCRIPTION")
	for _, tx := range st.Transactions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", tx.ID, tx.Date, tx.Type, tx.Amount.Dollars(), tx.Description)
	}
	w.Flush()
}

func (c *Console) printReport() {
	st := c.ctrl.Snapshot()
	fmt.Fprintf(c.out, "Income Statement (%s)\n", st.Filter.Label())
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "Income\t%s\t\n", st.Statement.Income.Dollars())
	fmt.Fprintf(w, "Expenses\t%s\t\n", st.Statement.Expenses.Dollars())
	fmt.Fprintf(w, "Net income\t%s\t\n", st.Statement.NetIncome.Dollars())
	w.Flush()
}

func (c *Console) printStatus() {
	st := c.ctrl.Snapshot()
	if st.Authenticated {
		fmt.Fprintf(c.out, "Signed in as %s <%s>\n", st.User.Name, st.User.Email)
	} else {
		fmt.Fprintln(c.out, "Not signed in")
	}
	fmt.Fprintf(c.out, "Filter: %s\n", st.Filter.Label())
	if st.Error != "" {
		fmt.Fprintf(c.out, "Error: %s\n", st.Error)
	}
}

// printSummary shows counts after a refresh and any shared error the command
// did not already return.
func (c *Console) printSummary(reported error) {
	st := c.ctrl.Snapshot()
	if !st.Authenticated {
		return
	}
	fmt.Fprintf(c.out, "%d transactions, net %s (%s)\n", len(st.Transactions), st.Statement.NetIncome.Dollars(), st.Filter.Label())
	if st.Error != "" && reported == nil {
		fmt.Fprintf(c.out, "Warning: %s\n", st.Error)
	}
}

func openBound(s string) string {
	if s == "-" {
		return ""
	}
	return s
}

// normalizeType accepts income/expense in any case.
func normalizeType(s string) core.TransactionType {
	switch strings.ToLower(s) {
	case "income":
		return core.Income
	case "expense":
		return core.Expense
	}
	return core.TransactionType(s)
}
