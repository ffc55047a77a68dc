// Package provision runs the secret provisioning flow: pick a local key pair,
// ask the configuration service for the secrets issued to its fingerprint,
// and open each hybrid envelope with that key pair. Secrets reach the sink
// only after every one of them has been fetched, verified and decrypted.
package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/relaymq/client-go/internal/api"
	"github.com/relaymq/client-go/internal/crypto"
	"github.com/relaymq/client-go/internal/fingerprint"
)

// DefaultConcurrency bounds the number of secrets resolved at once.
const DefaultConcurrency = 4

// KeyStore is the part of the key store a flow needs. Private keys are
// referenced by alias only.
type KeyStore interface {
	ListAliases(ctx context.Context) ([]string, error)
	CalcFingerprint(ctx context.Context, alias string) (string, error)
	KeySize(ctx context.Context, alias string) (int, error)
	DecryptBytes(ctx context.Context, alias string, data []byte) ([]byte, error)
}

// SecretService is the remote configuration service.
type SecretService interface {
	ListSecrets(ctx context.Context, fingerprint string) ([]api.SecretDescriptor, error)
	GetSecret(ctx context.Context, id string) (*api.Secret, error)
}

// AliasSelector chooses one alias when more than one key pair exists.
type AliasSelector interface {
	SelectAlias(ctx context.Context, aliases []string) (string, error)
}

// AliasSelectorFunc adapts a function to AliasSelector.
type AliasSelectorFunc func(ctx context.Context, aliases []string) (string, error)

// SelectAlias calls f.
func (f AliasSelectorFunc) SelectAlias(ctx context.Context, aliases []string) (string, error) {
	return f(ctx, aliases)
}

// SecretSink receives the decrypted secrets of a successful flow.
type SecretSink interface {
	Apply(ctx context.Context, secrets []Secret) error
}

// Secret is a decrypted secret and the target it is destined for.
type Secret struct {
	ID     string
	Target string
	Value  []byte
}

// Result summarizes a successful flow.
type Result struct {
	FlowID      string
	Alias       string
	Fingerprint string
	Secrets     []Secret
	// Skipped counts descriptors of an unsupported shape.
	Skipped int
}

// Provisioner runs provisioning flows. It holds no per-flow state and may
// run several flows concurrently.
type Provisioner struct {
	keys        KeyStore
	service     SecretService
	selector    AliasSelector
	sink        SecretSink
	logger      *slog.Logger
	concurrency int
	observers   []func(Transition)
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithAliasSelector sets the selector consulted when several aliases exist.
func WithAliasSelector(s AliasSelector) Option {
	return func(p *Provisioner) {
		p.selector = s
	}
}

// WithSink sets the sink that receives decrypted secrets.
func WithSink(s SecretSink) Option {
	return func(p *Provisioner) {
		p.sink = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provisioner) {
		p.logger = logger
	}
}

// WithConcurrency bounds the number of secrets resolved at once.
func WithConcurrency(n int) Option {
	return func(p *Provisioner) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithObserver registers fn to be called on every state transition. fn may
// be called from several goroutines at once.
func WithObserver(fn func(Transition)) Option {
	return func(p *Provisioner) {
		p.observers = append(p.observers, fn)
	}
}

// New returns a Provisioner.
func New(keys KeyStore, service SecretService, opts ...Option) *Provisioner {
	p := &Provisioner{
		keys:        keys,
		service:     service,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provisioner) transition(ctx context.Context, fs flowState, secretID string, to State, err error) flowState {
	t := Transition{FlowID: fs.id, SecretID: secretID, From: fs.state, To: to, Err: err}

	attrs := []any{
		slog.String("flow_id", fs.id),
		slog.String("from", t.From.String()),
		slog.String("to", t.To.String()),
	}
	if secretID != "" {
		attrs = append(attrs, slog.String("secret_id", secretID))
	}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
		p.logger.WarnContext(ctx, "provisioning state change", attrs...)
	} else {
		p.logger.DebugContext(ctx, "provisioning state change", attrs...)
	}

	for _, fn := range p.observers {
		fn(t)
	}

	fs.state = to
	return fs
}

// fail moves the flow to Failed and wraps err in a *FlowError.
func (p *Provisioner) fail(ctx context.Context, fs flowState, err error) error {
	fe := &FlowError{FlowID: fs.id, State: fs.state, Err: err}
	var se *secretError
	if errors.As(err, &se) {
		fe.SecretID = se.id
		fe.State = se.state
		fe.Err = se.err
	}
	p.transition(ctx, fs, fe.SecretID, StateFailed, fe.Err)
	return fe
}

// Run executes one flow. Any failure ends the flow in StateFailed with no
// secret delivered; the caller restarts from scratch. Cancelling ctx
// abandons the flow and discards fetches that complete afterward.
func (p *Provisioner) Run(ctx context.Context) (*Result, error) {
	fs := flowState{id: uuid.NewString(), state: StateIdle}

	fs, err := p.selectAlias(ctx, fs)
	if err != nil {
		return nil, p.fail(ctx, fs, err)
	}

	fs, err = p.computeFingerprint(ctx, fs)
	if err != nil {
		return nil, p.fail(ctx, fs, err)
	}

	fs = p.transition(ctx, fs, "", StateFetchingSecretList, nil)
	descriptors, err := p.service.ListSecrets(ctx, fs.fingerprint)
	if err != nil {
		return nil, p.fail(ctx, fs, err)
	}

	fs, secrets, skipped, err := p.handleConfigSecrets(ctx, fs, descriptors)
	if err != nil {
		return nil, p.fail(ctx, fs, err)
	}

	if p.sink != nil && len(secrets) > 0 {
		if err := p.sink.Apply(ctx, secrets); err != nil {
			wipeSecrets(secrets)
			return nil, p.fail(ctx, fs, fmt.Errorf("failed to apply secrets: %w", err))
		}
	}

	p.transition(ctx, fs, "", StateDone, nil)
	p.logger.InfoContext(ctx, "provisioning complete",
		slog.String("flow_id", fs.id),
		slog.String("alias", fs.alias),
		slog.Int("secrets", len(secrets)),
		slog.Int("skipped", skipped),
	)

	return &Result{
		FlowID:      fs.id,
		Alias:       fs.alias,
		Fingerprint: fs.fingerprint,
		Secrets:     secrets,
		Skipped:     skipped,
	}, nil
}

func (p *Provisioner) selectAlias(ctx context.Context, fs flowState) (flowState, error) {
	fs = p.transition(ctx, fs, "", StateListingAliases, nil)

	aliases, err := p.keys.ListAliases(ctx)
	if err != nil {
		return fs, fmt.Errorf("failed to list aliases: %w", err)
	}

	switch len(aliases) {
	case 0:
		return fs, ErrNoAliases
	case 1:
		fs.alias = aliases[0]
		return fs, nil
	}

	fs = p.transition(ctx, fs, "", StateAwaitingAliasSelection, nil)
	if p.selector == nil {
		return fs, fmt.Errorf("%w: %d aliases and no selector", ErrAliasSelection, len(aliases))
	}

	alias, err := p.selector.SelectAlias(ctx, slices.Clone(aliases))
	if err != nil {
		return fs, fmt.Errorf("%w: %w", ErrAliasSelection, err)
	}
	if !slices.Contains(aliases, alias) {
		return fs, fmt.Errorf("%w: %q is not a key pair alias", ErrAliasSelection, alias)
	}

	fs.alias = alias
	return fs, nil
}

func (p *Provisioner) computeFingerprint(ctx context.Context, fs flowState) (flowState, error) {
	fs = p.transition(ctx, fs, "", StateComputingFingerprint, nil)

	fp, err := p.keys.CalcFingerprint(ctx, fs.alias)
	if err != nil {
		return fs, fmt.Errorf("failed to compute fingerprint of %q: %w", fs.alias, err)
	}
	size, err := p.keys.KeySize(ctx, fs.alias)
	if err != nil {
		return fs, fmt.Errorf("failed to read key size of %q: %w", fs.alias, err)
	}

	fs.fingerprint = fp
	fs.keySize = size
	return fs, nil
}

// handleConfigSecrets resolves every individual descriptor concurrently.
// Batch descriptors are not supported and are skipped. The first failure
// cancels the remaining fetches and nothing is returned.
func (p *Provisioner) handleConfigSecrets(ctx context.Context, fs flowState, descriptors []api.SecretDescriptor) (flowState, []Secret, int, error) {
	var individual []api.SecretDescriptor
	skipped := 0
	for _, d := range descriptors {
		if d.IsBatch() {
			p.logger.WarnContext(ctx, "skipping shared key secret descriptor",
				slog.String("flow_id", fs.id),
				slog.Int("ids", len(d.IDs)),
			)
			skipped++
			continue
		}
		if d.ID == "" {
			return fs, nil, 0, fmt.Errorf("%w: descriptor id", ErrMissingField)
		}
		if d.Target == "" {
			return fs, nil, 0, &secretError{id: d.ID, state: fs.state, err: fmt.Errorf("%w: descriptor target", ErrMissingField)}
		}
		individual = append(individual, d)
	}

	if len(individual) == 0 {
		return fs, nil, skipped, nil
	}

	fs = p.transition(ctx, fs, "", StateFetchingSecretValue, nil)

	results := make([]Secret, len(individual))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, d := range individual {
		g.Go(func() error {
			s, err := p.resolveSecret(gctx, fs, d)
			if err != nil {
				return err
			}
			results[i] = s
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		wipeSecrets(results)
		return fs, nil, 0, err
	}
	if err := ctx.Err(); err != nil {
		wipeSecrets(results)
		return fs, nil, 0, err
	}

	return fs, results, skipped, nil
}

// resolveSecret fetches, verifies, unwraps and decrypts one secret.
func (p *Provisioner) resolveSecret(ctx context.Context, fs flowState, d api.SecretDescriptor) (Secret, error) {
	st := fs
	fail := func(err error) (Secret, error) {
		return Secret{}, &secretError{id: d.ID, state: st.state, err: err}
	}

	sec, err := p.service.GetSecret(ctx, d.ID)
	if err != nil {
		return fail(err)
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	st = p.transition(ctx, st, d.ID, StateVerifyingFingerprint, nil)
	switch {
	case sec.ID == "":
		return fail(fmt.Errorf("%w: id", ErrMissingField))
	case sec.Fingerprint == "":
		return fail(fmt.Errorf("%w: fingerprint", ErrMissingField))
	case sec.Value == "":
		return fail(fmt.Errorf("%w: value", ErrMissingField))
	case sec.ID != d.ID:
		return fail(fmt.Errorf("%w: requested %q, got %q", ErrSecretMismatch, d.ID, sec.ID))
	}
	if !fingerprint.Match(st.fingerprint, sec.Fingerprint) {
		return fail(ErrFingerprintMismatch)
	}

	raw, err := crypto.DecodeBase64(sec.Value)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrInvalidSecretValue, err))
	}
	env, err := crypto.ParseSecretEnvelope(raw, st.keySize)
	if err != nil {
		return fail(err)
	}

	st = p.transition(ctx, st, d.ID, StateUnwrapping, nil)
	key, err := p.keys.DecryptBytes(ctx, st.alias, env.WrappedKey)
	if err != nil {
		return fail(err)
	}
	defer crypto.Wipe(key)

	st = p.transition(ctx, st, d.ID, StateDecrypting, nil)
	plaintext, err := env.Open(key)
	if err != nil {
		return fail(err)
	}

	return Secret{ID: d.ID, Target: d.Target, Value: plaintext}, nil
}

func wipeSecrets(secrets []Secret) {
	for i := range secrets {
		crypto.Wipe(secrets[i].Value)
	}
}
