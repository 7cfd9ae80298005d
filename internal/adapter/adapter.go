// Package adapter is the client side of the ledger: it bridges a wallet
// provider and the registry/ledger contracts, computing content hashes,
// signing transactions and reading back verification state.
package adapter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kramik-ledger-api/internal/dto"
	"github.com/noah-isme/kramik-ledger-api/pkg/contenthash"
	"github.com/noah-isme/kramik-ledger-api/pkg/ledgerabi"
	"github.com/noah-isme/kramik-ledger-api/pkg/wallet"
)

// Status is the outcome of a write as seen by the caller.
type Status string

const (
	// StatusConfirmed means the record is on the ledger.
	StatusConfirmed Status = "confirmed"
	// StatusAlreadyRecorded means an identical record existed before this call.
	StatusAlreadyRecorded Status = "already_recorded"
	// StatusPending means the record is not visible yet; it may still land.
	StatusPending Status = "pending"
)

const (
	defaultWriteTimeout    = 30 * time.Second
	defaultConfirmWindow   = 30 * time.Second
	defaultConfirmInterval = time.Second
)

// Options tunes adapter timing.
type Options struct {
	WriteTimeout    time.Duration
	ConfirmWindow   time.Duration
	ConfirmInterval time.Duration
	Logger          zerolog.Logger
}

// TxResult describes a submitted write.
type TxResult struct {
	TxHash      common.Hash         `json:"tx_hash"`
	BlockNumber uint64              `json:"block_number"`
	Status      Status              `json:"status"`
	Receipt     dto.ReceiptResponse `json:"receipt"`
}

// QuizData is the off-chain quiz content a submission commits to.
type QuizData struct {
	StudentAddress common.Address
	SubjectCode    string
	Questions      []string
	Answers        []string
	SubmittedAt    time.Time
	Score          int
	TotalQuestions int
}

// QuizResult carries the hashes needed to verify the submission later.
// Resubmitting with the same SubmittedAt reproduces the same QuizHash.
type QuizResult struct {
	TxResult
	QuizHash    common.Hash `json:"quiz_hash"`
	AnswerHash  common.Hash `json:"answer_hash"`
	SubmittedAt time.Time   `json:"submitted_at"`
}

// ScheduleData identifies a completed schedule item.
type ScheduleData struct {
	StudentAddress common.Address
	ScheduleID     string
	Title          string
	CreditsEarned  uint64
}

// ScheduleResult carries the schedule hash needed to verify the completion later.
type ScheduleResult struct {
	TxResult
	ScheduleHash common.Hash `json:"schedule_hash"`
}

// chainReporter is implemented by providers that expose their current chain.
type chainReporter interface {
	ChainID() uint64
}

// Adapter is bound to one wallet provider. Wallet requests are serialized:
// a second request while one is running fails with wallet.ErrRequestPending.
type Adapter struct {
	provider  wallet.Provider
	transport Transport
	options   Options
	logger    zerolog.Logger

	busy       atomic.Bool
	generation atomic.Uint64

	mu        sync.Mutex
	account   common.Address
	chainID   uint64
	connected bool
	stopWatch func()
}

// New builds an adapter. Zero options take the defaults.
func New(provider wallet.Provider, transport Transport, options Options) *Adapter {
	if options.WriteTimeout <= 0 {
		options.WriteTimeout = defaultWriteTimeout
	}
	if options.ConfirmWindow <= 0 {
		options.ConfirmWindow = defaultConfirmWindow
	}
	if options.ConfirmInterval <= 0 {
		options.ConfirmInterval = defaultConfirmInterval
	}

	return &Adapter{
		provider:  provider,
		transport: transport,
		options:   options,
		logger:    options.Logger.With().Str("component", "ledger_adapter").Str("wallet", provider.Name()).Logger(),
	}
}

// Connect requests account access and starts watching for account and chain changes.
func (a *Adapter) Connect(ctx context.Context) (common.Address, error) {
	const op = "connect"
	if !a.busy.CompareAndSwap(false, true) {
		return common.Address{}, a.fail(op, common.Address{}, wallet.ErrRequestPending)
	}
	defer a.busy.Store(false)

	chainID, err := a.transport.ChainID(ctx)
	if err != nil {
		return common.Address{}, a.fail(op, common.Address{}, err)
	}
	if reporter, ok := a.provider.(chainReporter); ok && reporter.ChainID() != chainID {
		return common.Address{}, a.fail(op, common.Address{}, ErrWrongChain)
	}

	accounts, err := a.provider.RequestAccounts(ctx)
	if err != nil {
		return common.Address{}, a.fail(op, common.Address{}, err)
	}
	if len(accounts) == 0 {
		return common.Address{}, a.fail(op, common.Address{}, wallet.ErrLocked)
	}

	notifications, stop := a.provider.Subscribe()

	a.mu.Lock()
	if a.stopWatch != nil {
		a.stopWatch()
	}
	a.account = accounts[0]
	a.chainID = chainID
	a.connected = true
	a.stopWatch = stop
	generation := a.generation.Add(1)
	a.mu.Unlock()

	go a.watch(notifications, generation)

	a.logger.Info().Str("account", accounts[0].Hex()).Uint64("chain_id", chainID).Msg("wallet connected")
	return accounts[0], nil
}

// Disconnect forgets the account and stops watching the provider.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	stop := a.stopWatch
	a.stopWatch = nil
	a.connected = false
	a.account = common.Address{}
	a.generation.Add(1)
	a.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Account returns the connected account.
func (a *Adapter) Account() (common.Address, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.account, a.connected
}

// watch invalidates the connection it was started for on any account, chain
// or disconnect notification. It stops once a newer connection replaces it.
func (a *Adapter) watch(notifications <-chan wallet.Notification, generation uint64) {
	for notification := range notifications {
		a.mu.Lock()
		if a.generation.Load() != generation {
			a.mu.Unlock()
			return
		}
		if !a.connected {
			a.mu.Unlock()
			continue
		}
		previous := a.account
		a.connected = false
		a.account = common.Address{}
		a.generation.Add(1)
		a.mu.Unlock()

		a.logger.Warn().
			Str("kind", string(notification.Kind)).
			Str("previous_account", previous.Hex()).
			Msg("wallet connection invalidated; reconnect required")
	}
}

// SignMessage signs an application message, e.g. a sign-in challenge.
func (a *Adapter) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	const op = "sign_message"
	session, err := a.begin(op)
	if err != nil {
		return nil, err
	}
	defer session.end()

	signature, err := a.provider.PersonalSign(ctx, session.account, message)
	if err != nil {
		return nil, a.fail(op, session.account, err)
	}
	if !session.current() {
		return nil, a.fail(op, session.account, ErrConnectionChanged)
	}
	return signature, nil
}

// RecordQuiz hashes the quiz content and records the submission. A zero
// StudentAddress records for the connected account.
func (a *Adapter) RecordQuiz(ctx context.Context, data QuizData) (QuizResult, error) {
	submittedAt := data.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now()
	}
	// Hashes carry millisecond precision.
	submittedAt = time.UnixMilli(submittedAt.UnixMilli()).UTC()

	result := QuizResult{
		QuizHash:    contenthash.QuizHash(data.SubjectCode, data.Questions, submittedAt),
		AnswerHash:  contenthash.AnswerHash(data.Answers, submittedAt),
		SubmittedAt: submittedAt,
	}

	totalQuestions := data.TotalQuestions
	if totalQuestions == 0 {
		totalQuestions = len(data.Questions)
	}

	tx, err := a.write(ctx, "record_quiz", ledgerabi.MethodRecordQuizSubmission, func(account common.Address) any {
		return ledgerabi.RecordQuizParams{
			StudentAddress: orAccount(data.StudentAddress, account),
			QuizHash:       result.QuizHash,
			AnswerHash:     result.AnswerHash,
			Score:          data.Score,
			TotalQuestions: totalQuestions,
			SubjectCode:    data.SubjectCode,
		}
	})
	result.TxResult = tx
	return result, err
}

// RecordScheduleCompletion records a completed schedule item.
func (a *Adapter) RecordScheduleCompletion(ctx context.Context, data ScheduleData) (ScheduleResult, error) {
	result := ScheduleResult{ScheduleHash: contenthash.ScheduleHash(data.ScheduleID)}

	tx, err := a.write(ctx, "record_schedule_completion", ledgerabi.MethodRecordScheduleCompletion, func(account common.Address) any {
		return ledgerabi.RecordScheduleParams{
			StudentAddress: orAccount(data.StudentAddress, account),
			ScheduleHash:   result.ScheduleHash,
			CreditsEarned:  data.CreditsEarned,
			ScheduleTitle:  data.Title,
		}
	})
	result.TxResult = tx
	return result, err
}

// RegisterStudent registers a wallet in the identity registry (owner only).
func (a *Adapter) RegisterStudent(ctx context.Context, student common.Address, studentHash common.Hash) (TxResult, error) {
	return a.write(ctx, "register_student", ledgerabi.MethodRegisterStudent, fixed(ledgerabi.RegisterStudentParams{
		StudentHash:   studentHash,
		WalletAddress: student,
	}))
}

// RegisterAdmin registers an administrator with a role label (owner only).
func (a *Adapter) RegisterAdmin(ctx context.Context, admin common.Address, role string) (TxResult, error) {
	return a.write(ctx, "register_admin", ledgerabi.MethodRegisterAdmin, fixed(ledgerabi.RegisterAdminParams{
		WalletAddress: admin,
		Role:          role,
	}))
}

// SetStudentStatus activates or deactivates a student (owner only).
func (a *Adapter) SetStudentStatus(ctx context.Context, student common.Address, active bool) (TxResult, error) {
	return a.write(ctx, "set_student_status", ledgerabi.MethodSetStudentStatus, fixed(ledgerabi.SetStatusParams{
		Address: student,
		Active:  active,
	}))
}

// SetAdminStatus activates or deactivates an administrator (owner only).
func (a *Adapter) SetAdminStatus(ctx context.Context, admin common.Address, active bool) (TxResult, error) {
	return a.write(ctx, "set_admin_status", ledgerabi.MethodSetAdminStatus, fixed(ledgerabi.SetStatusParams{
		Address: admin,
		Active:  active,
	}))
}

// AuthorizeAdmin lets an address record on behalf of students (owner only).
func (a *Adapter) AuthorizeAdmin(ctx context.Context, admin common.Address) (TxResult, error) {
	return a.write(ctx, "authorize_admin", ledgerabi.MethodAuthorizeAdmin, fixed(ledgerabi.AdminParams{Address: admin}))
}

// RevokeAdmin removes a ledger authorization (owner only).
func (a *Adapter) RevokeAdmin(ctx context.Context, admin common.Address) (TxResult, error) {
	return a.write(ctx, "revoke_admin", ledgerabi.MethodRevokeAdmin, fixed(ledgerabi.AdminParams{Address: admin}))
}

// VerifyQuiz reads whether the quiz submission is recorded. Reads are never serialized with writes.
func (a *Adapter) VerifyQuiz(ctx context.Context, student common.Address, quizHash common.Hash) (bool, error) {
	verified, err := a.transport.VerifyQuiz(ctx, student, quizHash)
	if err != nil {
		return false, a.fail("verify_quiz", student, err)
	}
	return verified, nil
}

// VerifySchedule reads whether the schedule completion is recorded.
func (a *Adapter) VerifySchedule(ctx context.Context, student common.Address, scheduleHash common.Hash) (bool, error) {
	verified, err := a.transport.VerifySchedule(ctx, student, scheduleHash)
	if err != nil {
		return false, a.fail("verify_schedule", student, err)
	}
	return verified, nil
}

// Credits reads the credit accumulator of a student.
func (a *Adapter) Credits(ctx context.Context, student common.Address) (dto.CreditsResponse, error) {
	credits, err := a.transport.Credits(ctx, student)
	if err != nil {
		return dto.CreditsResponse{}, a.fail("credits", student, err)
	}
	return credits, nil
}

// AwaitConfirmation polls check until it reports true. A record still absent
// when the confirmation window closes is pending, not failed.
func (a *Adapter) AwaitConfirmation(ctx context.Context, check func(ctx context.Context) (bool, error)) (Status, error) {
	deadline := time.NewTimer(a.options.ConfirmWindow)
	defer deadline.Stop()
	ticker := time.NewTicker(a.options.ConfirmInterval)
	defer ticker.Stop()

	for {
		confirmed, err := check(ctx)
		if err != nil && !errors.Is(err, ErrUnavailable) {
			return StatusPending, err
		}
		if confirmed {
			return StatusConfirmed, nil
		}

		select {
		case <-ctx.Done():
			return StatusPending, ctx.Err()
		case <-deadline.C:
			return StatusPending, nil
		case <-ticker.C:
		}
	}
}

type session struct {
	adapter    *Adapter
	account    common.Address
	chainID    uint64
	generation uint64
}

func (s session) current() bool {
	return s.adapter.generation.Load() == s.generation
}

func (s session) end() {
	s.adapter.busy.Store(false)
}

func (a *Adapter) begin(op string) (session, error) {
	if !a.busy.CompareAndSwap(false, true) {
		return session{}, a.fail(op, common.Address{}, wallet.ErrRequestPending)
	}

	a.mu.Lock()
	account, chainID, connected := a.account, a.chainID, a.connected
	a.mu.Unlock()
	if !connected {
		a.busy.Store(false)
		return session{}, a.fail(op, common.Address{}, ErrWalletNotConnected)
	}

	return session{adapter: a, account: account, chainID: chainID, generation: a.generation.Load()}, nil
}

// write signs and submits one contract call. The write timeout bounds only
// the wait: a transaction submitted before it fires may still land.
func (a *Adapter) write(parent context.Context, op, method string, params func(account common.Address) any) (TxResult, error) {
	session, err := a.begin(op)
	if err != nil {
		return TxResult{}, err
	}
	defer session.end()

	ctx, cancel := context.WithTimeout(parent, a.options.WriteTimeout)
	defer cancel()

	nonce, err := a.transport.Nonce(ctx, session.account)
	if err != nil {
		return TxResult{}, a.fail(op, session.account, err)
	}

	tx, err := ledgerabi.NewTransaction(session.chainID, session.account, nonce, method, params(session.account))
	if err != nil {
		return TxResult{}, a.fail(op, session.account, err)
	}
	digest := tx.Digest()

	tx.Signature, err = a.provider.PersonalSign(ctx, session.account, digest[:])
	if err != nil {
		return TxResult{}, a.fail(op, session.account, err)
	}
	if !session.current() {
		return TxResult{}, a.fail(op, session.account, ErrConnectionChanged)
	}

	receipt, err := a.transport.Submit(ctx, tx)
	result := TxResult{TxHash: digest, BlockNumber: receipt.BlockNumber, Status: StatusConfirmed, Receipt: receipt}
	if err == nil {
		a.logger.Info().Str("op", op).Str("tx_hash", digest.Hex()).Uint64("block", receipt.BlockNumber).Msg("transaction confirmed")
		return result, nil
	}

	var revertErr *RevertError
	if errors.As(err, &revertErr) && ledgerabi.IsDuplicate(revertErr.Code) {
		a.logger.Info().Str("op", op).Str("tx_hash", digest.Hex()).Msg("record already on the ledger")
		result.Status = StatusAlreadyRecorded
		return result, nil
	}

	failure := &Error{Op: op, Wallet: a.provider.Name(), Account: session.account, TxHash: digest, Err: err}
	switch {
	case revertErr != nil:
		failure.Broadcast = true
	case errors.Is(err, ErrSubmitUnconfirmed),
		errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil:
		// The API may have accepted the transaction before the wait ended.
		failure.Broadcast = true
		result.Status = StatusPending
		return result, failure
	}
	return TxResult{TxHash: digest, Receipt: receipt}, failure
}

func (a *Adapter) fail(op string, account common.Address, err error) error {
	return &Error{Op: op, Wallet: a.provider.Name(), Account: account, Err: err}
}

func orAccount(address, account common.Address) common.Address {
	if address == (common.Address{}) {
		return account
	}
	return address
}

func fixed(params any) func(common.Address) any {
	return func(common.Address) any { return params }
}
