package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/noah-isme/kramik-ledger-api/internal/adapter"
	"github.com/noah-isme/kramik-ledger-api/internal/config"
	"github.com/noah-isme/kramik-ledger-api/pkg/contenthash"
	"github.com/noah-isme/kramik-ledger-api/pkg/wallet"
)

const usage = `usage: ledgerctl [global flags] <command> [flags] [args]

commands:
  register-student <address> <student-id>
  register-admin <address> <role>
  authorize-admin <address>
  revoke-admin <address>
  set-student-status <address> <true|false>
  record-quiz --subject CODE --question Q... --answer A... --score N [--student ADDRESS]
  record-schedule <schedule-id> --title TITLE --credits N [--student ADDRESS]
  verify-quiz <student> <quiz-hash>
  verify-schedule <student> <schedule-id>
  credits <student>

global flags:
`

type cli struct {
	cfg       config.Config
	apiURL    string
	key       string
	timeout   time.Duration
	transport *adapter.HTTPTransport
	logger    zerolog.Logger
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	if err := run(os.Args[1:], logger); err != nil {
		var adapterErr *adapter.Error
		if errors.As(err, &adapterErr) {
			logger.Error().
				Str("op", adapterErr.Op).
				Bool("broadcast", adapterErr.Broadcast).
				Bool("retryable", adapterErr.Retryable()).
				Err(adapterErr.Err).
				Msg("ledger call failed")
		} else {
			logger.Error().Err(err).Msg("ledgerctl failed")
		}
		os.Exit(1)
	}
}

func run(args []string, logger zerolog.Logger) error {
	v := config.NewViper()
	v.SetDefault("api.url", "http://localhost:8080/api/v1")

	global := pflag.NewFlagSet("ledgerctl", pflag.ContinueOnError)
	global.SetInterspersed(false)
	global.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		global.PrintDefaults()
	}
	global.String("api", v.GetString("api.url"), "ledger API base URL (KRAMIK_API_URL)")
	global.String("key", "", "hex private key of the signing wallet (KRAMIK_WALLET_KEY)")
	global.Uint64("chain-id", v.GetUint64("chain.id"), "chain id the wallet signs for (KRAMIK_CHAIN_ID)")
	global.Duration("timeout", 30*time.Second, "write timeout")
	if err := global.Parse(args); err != nil {
		return err
	}

	bindings := map[string]string{"api.url": "api", "wallet.key": "key", "chain.id": "chain-id", "adapter.write_timeout": "timeout"}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, global.Lookup(flag)); err != nil {
			return err
		}
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}

	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	c := &cli{
		cfg:       cfg,
		apiURL:    v.GetString("api.url"),
		key:       v.GetString("wallet.key"),
		timeout:   cfg.WriteTimeout,
		transport: adapter.NewHTTPTransport(v.GetString("api.url"), cfg.WriteTimeout),
		logger:    logger,
	}
	return c.dispatch(context.Background(), rest[0], rest[1:])
}

func (c *cli) dispatch(ctx context.Context, command string, args []string) error {
	switch command {
	case "register-student":
		return c.registerStudent(ctx, args)
	case "register-admin":
		return c.registerAdmin(ctx, args)
	case "authorize-admin", "revoke-admin":
		return c.adminAuthorization(ctx, command, args)
	case "set-student-status":
		return c.setStudentStatus(ctx, args)
	case "record-quiz":
		return c.recordQuiz(ctx, args)
	case "record-schedule":
		return c.recordSchedule(ctx, args)
	case "verify-quiz":
		return c.verifyQuiz(ctx, args)
	case "verify-schedule":
		return c.verifySchedule(ctx, args)
	case "credits":
		return c.credits(ctx, args)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// connect builds an adapter over the configured key and connects it.
func (c *cli) connect(ctx context.Context) (*adapter.Adapter, error) {
	if c.key == "" {
		return nil, errors.New("a signing key is required (--key or KRAMIK_WALLET_KEY)")
	}
	provider, err := wallet.KeyProviderFromHex("ledgerctl", c.cfg.ChainID, c.key)
	if err != nil {
		return nil, err
	}

	a := adapter.New(provider, c.transport, adapter.Options{
		WriteTimeout:    c.timeout,
		ConfirmWindow:   c.cfg.ConfirmWindow,
		ConfirmInterval: c.cfg.ConfirmInterval,
		Logger:          c.logger,
	})
	account, err := a.Connect(ctx)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().Str("account", account.Hex()).Str("api", c.apiURL).Msg("wallet connected")
	return a, nil
}

func (c *cli) registerStudent(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: register-student <address> <student-id>")
	}
	student, err := parseAddress(args[0])
	if err != nil {
		return err
	}

	a, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer a.Disconnect()

	result, err := a.RegisterStudent(ctx, student, contenthash.StudentHash(args[1]))
	if err != nil {
		return err
	}
	return printJSON(result)
}

func (c *cli) registerAdmin(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: register-admin <address> <role>")
	}
	admin, err := parseAddress(args[0])
	if err != nil {
		return err
	}

	a, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer a.Disconnect()

	result, err := a.RegisterAdmin(ctx, admin, args[1])
	if err != nil {
		return err
	}
	return printJSON(result)
}

func (c *cli) adminAuthorization(ctx context.Context, command string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s <address>", command)
	}
	admin, err := parseAddress(args[0])
	if err != nil {
		return err
	}

	a, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer a.Disconnect()

	var result adapter.TxResult
	if command == "revoke-admin" {
		result, err = a.RevokeAdmin(ctx, admin)
	} else {
		result, err = a.AuthorizeAdmin(ctx, admin)
	}
	if err != nil {
		return err
	}
	return printJSON(result)
}

func (c *cli) setStudentStatus(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: set-student-status <address> <true|false>")
	}
	student, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	active, err := strconv.ParseBool(args[1])
	if err != nil {
		return fmt.Errorf("invalid status %q: %w", args[1], err)
	}

	a, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer a.Disconnect()

	result, err := a.SetStudentStatus(ctx, student, active)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func (c *cli) recordQuiz(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("record-quiz", pflag.ContinueOnError)
	subject := flags.String("subject", "", "subject code")
	questions := flags.StringArray("question", nil, "question text, repeatable and ordered")
	answers := flags.StringArray("answer", nil, "answer text, repeatable and ordered")
	score := flags.Int("score", 0, "score from 0 to 100")
	total := flags.Int("total", 0, "total questions (defaults to the number of --question)")
	submittedAt := flags.Int64("submitted-at", time.Now().UnixMilli(), "submission time in unix milliseconds")
	studentFlag := flags.String("student", "", "student address (defaults to the signing wallet)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *subject == "" || len(*questions) == 0 {
		return errors.New("record-quiz needs --subject and at least one --question")
	}

	var student common.Address
	if *studentFlag != "" {
		parsed, err := parseAddress(*studentFlag)
		if err != nil {
			return err
		}
		student = parsed
	}

	a, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer a.Disconnect()

	result, err := a.RecordQuiz(ctx, adapter.QuizData{
		StudentAddress: student,
		SubjectCode:    *subject,
		Questions:      *questions,
		Answers:        *answers,
		SubmittedAt:    time.UnixMilli(*submittedAt),
		Score:          *score,
		TotalQuestions: *total,
	})
	if result.Status == adapter.StatusPending {
		if student == (common.Address{}) {
			student, _ = a.Account()
		}
		result.Status, _ = a.AwaitConfirmation(ctx, func(ctx context.Context) (bool, error) {
			return a.VerifyQuiz(ctx, student, result.QuizHash)
		})
		if result.Status == adapter.StatusConfirmed {
			err = nil
		}
	}
	if err != nil {
		return err
	}
	return printJSON(result)
}

func (c *cli) recordSchedule(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("record-schedule", pflag.ContinueOnError)
	title := flags.String("title", "", "schedule title")
	credits := flags.Uint64("credits", 0, "credits earned")
	studentFlag := flags.String("student", "", "student address (defaults to the signing wallet)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return errors.New("usage: record-schedule <schedule-id> --title TITLE --credits N")
	}

	var student common.Address
	if *studentFlag != "" {
		parsed, err := parseAddress(*studentFlag)
		if err != nil {
			return err
		}
		student = parsed
	}

	a, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer a.Disconnect()

	result, err := a.RecordScheduleCompletion(ctx, adapter.ScheduleData{
		StudentAddress: student,
		ScheduleID:     flags.Arg(0),
		Title:          *title,
		CreditsEarned:  *credits,
	})
	if result.Status == adapter.StatusPending {
		if student == (common.Address{}) {
			student, _ = a.Account()
		}
		result.Status, _ = a.AwaitConfirmation(ctx, func(ctx context.Context) (bool, error) {
			return a.VerifySchedule(ctx, student, result.ScheduleHash)
		})
		if result.Status == adapter.StatusConfirmed {
			err = nil
		}
	}
	if err != nil {
		return err
	}
	return printJSON(result)
}

func (c *cli) verifyQuiz(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: verify-quiz <student> <quiz-hash>")
	}
	student, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	hash, err := parseHash(args[1])
	if err != nil {
		return err
	}

	verified, err := c.transport.VerifyQuiz(ctx, student, hash)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"student_address": student.Hex(), "quiz_hash": hash.Hex(), "verified": verified})
}

func (c *cli) verifySchedule(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: verify-schedule <student> <schedule-id>")
	}
	student, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	hash := contenthash.ScheduleHash(args[1])

	verified, err := c.transport.VerifySchedule(ctx, student, hash)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"student_address": student.Hex(), "schedule_hash": hash.Hex(), "verified": verified})
}

func (c *cli) credits(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: credits <student>")
	}
	student, err := parseAddress(args[0])
	if err != nil {
		return err
	}

	credits, err := c.transport.Credits(ctx, student)
	if err != nil {
		return err
	}
	return printJSON(credits)
}

func parseAddress(value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid address %q", value)
	}
	address := common.HexToAddress(value)
	if address == (common.Address{}) {
		return common.Address{}, fmt.Errorf("invalid address %q", value)
	}
	return address, nil
}

func parseHash(value string) (common.Hash, error) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if len(value) != 2*common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid hash %q", value)
	}
	return common.HexToHash(value), nil
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
