// Package shell provides the interactive calculator session: service
// bootstrap, input dispatch, and the readline loop. One input line is either
// a session command (":precision 12"), a solve request ("solve x^2 = 4 from
// 1"), or an expression handed to the evaluator.
package shell

import (
	gocontext "context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"unitcalc/internal/context"
	"unitcalc/internal/evaluator"
	"unitcalc/internal/logger"
	"unitcalc/internal/output"
	"unitcalc/internal/services"
	"unitcalc/pkg/calctypes"
)

// InitializeServices registers and initializes the calculator services in the
// global registry.
func InitializeServices(testMode bool) error {
	context.GetGlobalContext().SetTestMode(testMode)

	registry := services.GetGlobalRegistry()
	if err := registry.RegisterService(services.NewConfigService()); err != nil {
		return err
	}
	if err := registry.RegisterService(services.NewCalcService()); err != nil {
		return err
	}
	if err := registry.RegisterService(services.NewSolveService()); err != nil {
		return err
	}
	if err := registry.InitializeAll(); err != nil {
		return err
	}

	// Forward the configured iteration cap to the solver.
	cfg, err := configService()
	if err != nil {
		return err
	}
	solve, err := solveService()
	if err != nil {
		return err
	}
	if err := solve.SetMaxIterations(cfg.MaxIterations()); err != nil {
		return err
	}

	logger.Debug("services initialized")
	return nil
}

func calcService() (*services.CalcService, error) {
	svc, err := services.GetGlobalRegistry().GetService("calc")
	if err != nil {
		return nil, err
	}
	return svc.(*services.CalcService), nil
}

func solveService() (*services.SolveService, error) {
	svc, err := services.GetGlobalRegistry().GetService("solver")
	if err != nil {
		return nil, err
	}
	return svc.(*services.SolveService), nil
}

func configService() (*services.ConfigService, error) {
	svc, err := services.GetGlobalRegistry().GetService("config")
	if err != nil {
		return nil, err
	}
	return svc.(*services.ConfigService), nil
}

// ProcessLine dispatches one input line. It never returns an error for user
// mistakes; those print through the printer so the session keeps going.
func ProcessLine(goCtx gocontext.Context, line string, p *output.Printer) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	switch {
	case strings.HasPrefix(line, ":"):
		runSessionCommand(line, p)
	case strings.HasPrefix(line, "solve ") || line == "solve":
		runSolve(goCtx, strings.TrimSpace(strings.TrimPrefix(line, "solve")), p)
	default:
		runEvaluate(goCtx, line, p)
	}
}

func runEvaluate(goCtx gocontext.Context, input string, p *output.Printer) {
	calc, err := calcService()
	if err != nil {
		p.Error(err.Error())
		return
	}
	res, err := calc.Evaluate(input)
	if err != nil {
		var open *evaluator.OpenEquationError
		if errors.As(err, &open) {
			// An equation with unknowns goes to the solver with no starting
			// point; the analytic path may still crack it.
			solveTree(goCtx, open.Root, "", nil, p)
			return
		}
		p.Error(err.Error())
		// Hints collected before the failure still explain it, like the
		// temperature hint next to a rejected "0 degC + 5 degC".
		if res != nil {
			printHints(res.Hints, p)
		}
		return
	}
	s, err := calc.Formatter().FormatResult(res)
	if err != nil {
		p.Error(err.Error())
		return
	}
	p.Result(s)
	printHints(res.Hints, p)
}

// runSolve handles "solve <equation> [for <var>] [from <start>]".
func runSolve(goCtx gocontext.Context, args string, p *output.Printer) {
	equation, variable, start, err := parseSolveArgs(args)
	if err != nil {
		p.Error(err.Error())
		return
	}
	solve, err := solveService()
	if err != nil {
		p.Error(err.Error())
		return
	}
	outcome, ledger, err := solve.SolveInput(goCtx, equation, variable, start)
	if err != nil {
		p.Error(err.Error())
		return
	}
	calc, err := calcService()
	if err != nil {
		p.Error(err.Error())
		return
	}
	s, err := calc.Formatter().FormatOutcome(outcome, ledger)
	if err != nil {
		p.Error(err.Error())
		return
	}
	p.Result(s)
	printHints(outcome.Hints, p)
}

func solveTree(goCtx gocontext.Context, root *calctypes.ExpressionNode, variable string, start *calctypes.StartingPoint, p *output.Printer) {
	solve, err := solveService()
	if err != nil {
		p.Error(err.Error())
		return
	}
	outcome, ledger, err := solve.SolveTree(goCtx, root, variable, start)
	if err != nil {
		p.Error(err.Error())
		return
	}
	calc, err := calcService()
	if err != nil {
		p.Error(err.Error())
		return
	}
	s, err := calc.Formatter().FormatOutcome(outcome, ledger)
	if err != nil {
		p.Error(err.Error())
		return
	}
	p.Result(s)
	printHints(outcome.Hints, p)
}

// parseSolveArgs splits "x^2 = 4 for x from -1" into its parts. "for" and
// "from" clauses may appear in either order but at most once each.
func parseSolveArgs(args string) (equation, variable string, start *calctypes.StartingPoint, err error) {
	if i := strings.Index(args, " from "); i >= 0 {
		startText := strings.TrimSpace(args[i+len(" from "):])
		args = args[:i]
		start, err = parseStartingPoint(startText)
		if err != nil {
			return "", "", nil, err
		}
	}
	if i := strings.Index(args, " for "); i >= 0 {
		variable = strings.TrimSpace(args[i+len(" for "):])
		args = args[:i]
	}
	equation = strings.TrimSpace(args)
	if equation == "" {
		return "", "", nil, fmt.Errorf("usage: solve <equation> [for <variable>] [from <start>]")
	}
	return equation, variable, start, nil
}

// parseStartingPoint reads "<number>[<sign><number>i] [unit]", e.g. "-3.0",
// "1+2i", "300 K".
func parseStartingPoint(text string) (*calctypes.StartingPoint, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 || len(fields) > 2 {
		return nil, fmt.Errorf("bad starting point %q", text)
	}
	start := &calctypes.StartingPoint{}
	if len(fields) == 2 {
		start.Unit = fields[1]
	}

	num := fields[0]
	if strings.HasSuffix(num, "i") {
		body := strings.TrimSuffix(num, "i")
		// Split the real part from the imaginary part at the last interior
		// sign; "1+2i", "-1-0.5i".
		cut := -1
		for j := len(body) - 1; j > 0; j-- {
			if (body[j] == '+' || body[j] == '-') && body[j-1] != 'e' && body[j-1] != 'E' {
				cut = j
				break
			}
		}
		if cut < 0 {
			return nil, fmt.Errorf("bad complex starting point %q", num)
		}
		imag, err := strconv.ParseFloat(body[cut:], 64)
		if err != nil {
			return nil, fmt.Errorf("bad complex starting point %q: %w", num, err)
		}
		start.Value = body[:cut]
		start.Imag = imag
	} else {
		start.Value = num
	}
	if _, err := strconv.ParseFloat(start.Value, 64); err != nil {
		return nil, fmt.Errorf("bad starting point %q: %w", text, err)
	}
	return start, nil
}

func runSessionCommand(line string, p *output.Printer) {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	ctx := context.GetGlobalContext()
	switch cmd {
	case ":precision":
		if len(args) != 1 {
			p.Error("usage: :precision <digits>")
			return
		}
		digits, err := strconv.Atoi(args[0])
		if err != nil {
			p.Error(fmt.Sprintf("bad precision %q", args[0]))
			return
		}
		if err := ctx.SetOutputPrecision(digits); err != nil {
			p.Error(err.Error())
			return
		}
		p.Info(fmt.Sprintf("output precision set to %d significant digits", digits))
	case ":guard":
		if len(args) != 1 {
			p.Error("usage: :guard <digits>")
			return
		}
		digits, err := strconv.Atoi(args[0])
		if err != nil {
			p.Error(fmt.Sprintf("bad guard digits %q", args[0]))
			return
		}
		if err := ctx.SetGuardDigits(digits); err != nil {
			p.Error(err.Error())
			return
		}
		p.Info(fmt.Sprintf("guard digits set to %d", digits))
	case ":suppress":
		if len(args) != 1 {
			p.Error("usage: :suppress <hint-key>")
			return
		}
		ctx.Suppress(args[0])
		persistSuppressions(p)
		p.Info(fmt.Sprintf("suppressed hints with key %q", args[0]))
	case ":unsuppress":
		if len(args) != 1 {
			p.Error("usage: :unsuppress <hint-key>")
			return
		}
		ctx.Unsuppress(args[0])
		persistSuppressions(p)
		p.Info(fmt.Sprintf("unsuppressed hints with key %q", args[0]))
	case ":hints":
		keys := ctx.SuppressedKeys()
		if len(keys) == 0 {
			p.Info("no suppressed hints")
			return
		}
		for _, k := range keys {
			p.Info(k)
		}
	case ":help":
		printHelp(p)
	default:
		p.Error(fmt.Sprintf("unknown command %s (try :help)", cmd))
	}
}

func persistSuppressions(p *output.Printer) {
	cfg, err := configService()
	if err != nil {
		return
	}
	if err := cfg.SaveSuppressions(); err != nil {
		p.Info(fmt.Sprintf("suppression not persisted: %v", err))
	}
}

func printHints(hints []calctypes.Hint, p *output.Printer) {
	calc, err := calcService()
	if err != nil {
		return
	}
	for _, line := range calc.Formatter().FormatHints(hints) {
		p.Hint(line)
	}
}

func printHelp(p *output.Printer) {
	p.Printf(`Expressions:   12 km / 4 m, sin(pi/4), [1, 2; 3, 4] * [5; 6]
Conversions:   2 km to m, 300 K to degC, 1500 m to best, 1 mi to base
Equations:     1 m = 100 cm            (closed: prints true/false)
Solving:       solve x^2 = 4
               solve sin(x) = exp(x) from -3.0
               solve a*x + b = 0 for x
Commands:      :precision <digits>  :guard <digits>
               :suppress <key>      :unsuppress <key>      :hints
               :help                :quit
`)
}
