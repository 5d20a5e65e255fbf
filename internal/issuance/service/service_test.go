package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"idserver/internal/credentials/leaf"
	"idserver/internal/credentials/sybil"
	"idserver/internal/identity"
	"idserver/internal/issuance/models"
	"idserver/internal/issuance/service/mocks"
	"idserver/internal/nullifier"
	nullifierstore "idserver/internal/nullifier/store"
	"idserver/internal/providers"
	providermocks "idserver/internal/providers/mocks"
	registrystore "idserver/internal/registry/store"
	sessions "idserver/internal/session/models"
	sessionstore "idserver/internal/session/store"
	id "idserver/pkg/domain"
	dErrors "idserver/pkg/domain-errors"
	"idserver/pkg/platform/audit"
	"idserver/pkg/platform/audit/publisher"
	auditmemory "idserver/pkg/platform/audit/store/memory"
	"idserver/pkg/requestcontext"
)

const (
	testNullifier = "0x1f2e3d"
	providerRef   = "check-123"
)

var (
	issuedAt = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	bundle   = json.RawMessage(`{"leaf":"1","signature":{"R8":["2","3"],"S":"4"}}`)
)

// nullifierStore lets a test fail inserts or land a competing row just
// before the service's own insert.
type nullifierStore struct {
	*nullifierstore.InMemoryStore
	insertErr    error
	beforeInsert func(ctx context.Context)
}

func (n *nullifierStore) Insert(ctx context.Context, rec *nullifier.Record, staleBefore time.Time) error {
	if n.insertErr != nil {
		return n.insertErr
	}
	if n.beforeInsert != nil {
		n.beforeInsert(ctx)
	}
	return n.InMemoryStore.Insert(ctx, rec, staleBefore)
}

type IssuanceServiceSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	adapter    *providermocks.MockAdapter
	signer     *mocks.MockSigner
	sessions   *sessionstore.InMemoryStore
	registry   *registrystore.InMemoryStore
	nullifiers *nullifierStore
	audit      *auditmemory.InMemoryStore
	service    *Service
	ctx        context.Context
}

func TestIssuanceServiceSuite(t *testing.T) {
	suite.Run(t, new(IssuanceServiceSuite))
}

func (s *IssuanceServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.adapter = providermocks.NewMockAdapter(s.ctrl)
	s.signer = mocks.NewMockSigner(s.ctrl)
	s.sessions = sessionstore.NewInMemoryStore()
	s.registry = registrystore.NewInMemoryStore()
	s.nullifiers = &nullifierStore{InMemoryStore: nullifierstore.NewInMemoryStore()}
	s.audit = auditmemory.NewInMemoryStore()

	adapters := providers.NewRegistry()
	s.Require().NoError(adapters.Register(identity.ProviderOnfido, s.adapter))

	s.service = New(s.sessions, s.registry,
		nullifier.NewCache(s.nullifiers, nullifier.DefaultReplayWindow),
		adapters, s.signer,
		WithAuditPublisher(publisher.NewPublisher(s.audit)),
	)
	s.ctx = requestcontext.WithTime(context.Background(), issuedAt)
}

func (s *IssuanceServiceSuite) at(d time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), issuedAt.Add(d))
}

// inProgress stores a paid session with an attached vendor check.
func (s *IssuanceServiceSuite) inProgress(sigDigest, ref string) *sessions.Session {
	session, err := sessions.NewSession(id.NewSessionID(), sigDigest, identity.ProviderOnfido, issuedAt)
	s.Require().NoError(err)
	s.Require().NoError(session.MarkPaid(sessions.Payment{PayPalOrderID: "ORDER" + ref}, issuedAt))
	s.Require().NoError(session.AttachProviderSession(ref, issuedAt))
	s.Require().NoError(s.sessions.Create(s.ctx, session))
	return session
}

func (s *IssuanceServiceSuite) stored(sessionID id.SessionID) *sessions.Session {
	session, err := s.sessions.FindByID(s.ctx, sessionID)
	s.Require().NoError(err)
	return session
}

func (s *IssuanceServiceSuite) expectIssue(ref string) {
	fields := leaf.DummyIdentity()
	creds, err := leaf.Build(fields)
	s.Require().NoError(err)
	s.adapter.EXPECT().FetchVerificationResult(gomock.Any(), ref).Return(&fields, nil)
	s.signer.EXPECT().Issue(gomock.Any(), testNullifier, creds.CountryCodeField(), creds.LeafHash()).Return(bundle, nil)
	s.adapter.EXPECT().DeleteRemoteSession(gomock.Any(), ref).Return(nil)
}

func (s *IssuanceServiceSuite) TestIssue() {
	session := s.inProgress("digest", providerRef)
	s.expectIssue(providerRef)

	issuance, err := s.service.Issue(s.ctx, session.ID, testNullifier)
	s.Require().NoError(err)
	s.False(issuance.Replayed)
	s.JSONEq(string(bundle), string(issuance.Bundle))
	s.Equal(sessions.StatusIssued, s.stored(session.ID).Status)

	fields := leaf.DummyIdentity()
	entry, err := s.registry.FindActive(s.ctx, sybil.Derive(sybil.InputsFrom(fields)), time.Time{}, id.NewSessionID())
	s.Require().NoError(err)
	s.Equal(session.ID, entry.SessionID)

	events, err := s.audit.ListBySession(s.ctx, session.ID.String())
	s.Require().NoError(err)
	s.Require().NotEmpty(events)
	s.Equal(string(audit.EventCredentialsIssued), events[len(events)-1].Action)
}

func (s *IssuanceServiceSuite) TestReplayInsideWindowSkipsProvider() {
	session := s.inProgress("digest", providerRef)
	s.expectIssue(providerRef)
	first, err := s.service.Issue(s.ctx, session.ID, testNullifier)
	s.Require().NoError(err)

	// no further expectations: any adapter or signer call fails the test
	replay, err := s.service.Issue(s.at(5*24*time.Hour-time.Minute), session.ID, testNullifier)
	s.Require().NoError(err)
	s.True(replay.Replayed)
	s.Equal(first.Bundle, replay.Bundle)
	s.Equal(first.Creds.LeafHash(), replay.Creds.LeafHash())
}

func (s *IssuanceServiceSuite) TestReplayAfterWindowMisses() {
	session := s.inProgress("digest", providerRef)
	s.expectIssue(providerRef)
	_, err := s.service.Issue(s.ctx, session.ID, testNullifier)
	s.Require().NoError(err)

	// the cache misses, so the issued session is judged on its status
	_, err = s.service.Issue(s.at(5*24*time.Hour), session.ID, testNullifier)
	var stateErr *sessions.StateError
	s.Require().ErrorAs(err, &stateErr)
	s.Equal(sessions.StatusIssued, stateErr.Current)
}

func (s *IssuanceServiceSuite) TestNeedsPaymentIsRejected() {
	session, err := sessions.NewSession(id.NewSessionID(), "digest", identity.ProviderOnfido, issuedAt)
	s.Require().NoError(err)
	s.Require().NoError(s.sessions.Create(s.ctx, session))

	_, err = s.service.Issue(s.ctx, session.ID, testNullifier)
	var stateErr *sessions.StateError
	s.Require().ErrorAs(err, &stateErr)
	s.Equal(sessions.StatusNeedsPayment, stateErr.Current)
	s.Equal([]sessions.Status{sessions.StatusInProgress}, stateErr.Expected)
}

func (s *IssuanceServiceSuite) TestSecondRegistrationCollides() {
	first := s.inProgress("digest-a", "check-a")
	s.expectIssue("check-a")
	_, err := s.service.Issue(s.ctx, first.ID, testNullifier)
	s.Require().NoError(err)

	fields := leaf.DummyIdentity()
	fields.ZipCode = "99999"
	existing, err := s.registry.FindActive(s.ctx, sybil.Derive(sybil.InputsFrom(fields)), time.Time{}, id.NewSessionID())
	s.Require().NoError(err)

	second := s.inProgress("digest-b", "check-b")
	s.adapter.EXPECT().FetchVerificationResult(gomock.Any(), "check-b").Return(&fields, nil)

	_, err = s.service.Issue(s.ctx, second.ID, "12345")
	var collision *models.SybilCollisionError
	s.Require().ErrorAs(err, &collision)
	s.Equal(existing.ID, collision.ExistingID)
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateIdentity))

	stored := s.stored(second.ID)
	s.Equal(sessions.StatusVerificationFailed, stored.Status)
	s.Equal(collision.Error(), stored.VerificationFailureReason)
	s.Require().Len(s.registry.Collisions(), 1)
	s.Equal(existing.ID, s.registry.Collisions()[0].ExistingVerificationID)
}

func (s *IssuanceServiceSuite) TestTransientProviderErrorLeavesSession() {
	session := s.inProgress("digest", providerRef)
	s.adapter.EXPECT().FetchVerificationResult(gomock.Any(), providerRef).
		Return(nil, providers.NewProviderError(providers.ErrorTimeout, identity.ProviderOnfido, "onfido timed out", context.DeadlineExceeded))

	_, err := s.service.Issue(s.ctx, session.ID, testNullifier)
	s.Require().Error(err)
	s.True(providers.IsRetryable(err))
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Equal(sessions.StatusInProgress, s.stored(session.ID).Status)
}

func (s *IssuanceServiceSuite) TestVerificationFailureFailsSession() {
	session := s.inProgress("digest", providerRef)
	s.adapter.EXPECT().FetchVerificationResult(gomock.Any(), providerRef).
		Return(nil, providers.VerificationFailed(identity.ProviderOnfido, "Document is expired"))

	_, err := s.service.Issue(s.ctx, session.ID, testNullifier)
	s.True(dErrors.HasCode(err, dErrors.CodeVerificationFailed))
	s.Equal("Document is expired", dErrors.Message(err))

	stored := s.stored(session.ID)
	s.Equal(sessions.StatusVerificationFailed, stored.Status)
	s.Equal("Document is expired", stored.VerificationFailureReason)

	_, err = s.service.Issue(s.ctx, session.ID, testNullifier)
	s.Equal("Verification failed. Reason(s): Document is expired", dErrors.Message(err))
}

func (s *IssuanceServiceSuite) TestSignerFailureKeepsSessionInProgress() {
	session := s.inProgress("digest", providerRef)
	fields := leaf.DummyIdentity()
	s.adapter.EXPECT().FetchVerificationResult(gomock.Any(), providerRef).Return(&fields, nil)
	s.signer.EXPECT().Issue(gomock.Any(), testNullifier, gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeUnavailable, "signer unavailable"))

	_, err := s.service.Issue(s.ctx, session.ID, testNullifier)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Equal(sessions.StatusInProgress, s.stored(session.ID).Status)

	// a retry is not blocked by the registration written for this session
	s.expectIssue(providerRef)
	_, err = s.service.Issue(s.ctx, session.ID, testNullifier)
	s.Require().NoError(err)
}

func (s *IssuanceServiceSuite) TestNullifierWriteFailureKeepsSessionInProgress() {
	session := s.inProgress("digest", providerRef)
	fields := leaf.DummyIdentity()
	s.adapter.EXPECT().FetchVerificationResult(gomock.Any(), providerRef).Return(&fields, nil)
	s.signer.EXPECT().Issue(gomock.Any(), testNullifier, gomock.Any(), gomock.Any()).Return(bundle, nil)
	s.nullifiers.insertErr = errors.New("connection reset")

	_, err := s.service.Issue(s.ctx, session.ID, testNullifier)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Equal(sessions.StatusInProgress, s.stored(session.ID).Status)

	// once storage recovers the holder can still fetch credentials
	s.nullifiers.insertErr = nil
	s.expectIssue(providerRef)
	issuance, err := s.service.Issue(s.ctx, session.ID, testNullifier)
	s.Require().NoError(err)
	s.JSONEq(string(bundle), string(issuance.Bundle))
	s.Equal(sessions.StatusIssued, s.stored(session.ID).Status)
}

func (s *IssuanceServiceSuite) TestConcurrentWinnerBundleIsReturned() {
	session := s.inProgress("digest", providerRef)
	s.expectIssue(providerRef)

	winner := json.RawMessage(`{"leaf":"1","signature":{"R8":["9","9"],"S":"9"}}`)
	s.nullifiers.beforeInsert = func(ctx context.Context) {
		s.nullifiers.beforeInsert = nil
		fields := leaf.DummyIdentity()
		creds, err := leaf.Build(fields)
		s.Require().NoError(err)
		n, err := id.ParseIssuanceNullifier(testNullifier)
		s.Require().NoError(err)
		s.Require().NoError(s.nullifiers.InMemoryStore.Insert(ctx, &nullifier.Record{
			IssuanceNullifier: n.String(),
			SessionID:         session.ID,
			Provider:          identity.ProviderOnfido,
			Creds:             creds,
			SignedBundle:      winner,
			CreatedAt:         issuedAt,
		}, issuedAt.Add(-nullifier.DefaultReplayWindow)))
	}

	issuance, err := s.service.Issue(s.ctx, session.ID, testNullifier)
	s.Require().NoError(err)
	s.JSONEq(string(winner), string(issuance.Bundle))
	s.Equal(sessions.StatusIssued, s.stored(session.ID).Status)
}

func (s *IssuanceServiceSuite) TestConcurrentIssueSignsOnce() {
	session := s.inProgress("digest", providerRef)
	fields := leaf.DummyIdentity()
	entered := make(chan struct{})
	release := make(chan struct{})
	s.adapter.EXPECT().FetchVerificationResult(gomock.Any(), providerRef).Return(&fields, nil).Times(1)
	s.adapter.EXPECT().DeleteRemoteSession(gomock.Any(), providerRef).Return(nil).Times(1)
	s.signer.EXPECT().Issue(gomock.Any(), testNullifier, gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, string, string) (json.RawMessage, error) {
			close(entered)
			<-release
			return bundle, nil
		}).Times(1)

	var wg sync.WaitGroup
	results := make([]*models.Issuance, 2)
	errs := make([]error, 2)
	call := func(i int) {
		defer wg.Done()
		results[i], errs[i] = s.service.Issue(s.ctx, session.ID, testNullifier)
	}

	wg.Add(1)
	go call(0)
	<-entered
	wg.Add(1)
	go call(1)
	// the second caller either joins the in-flight call or, if it arrives
	// after it finished, replays from the cache; neither signs again
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range results {
		s.Require().NoError(errs[i])
		s.JSONEq(string(bundle), string(results[i].Bundle))
	}
	s.Equal(sessions.StatusIssued, s.stored(session.ID).Status)
}

func (s *IssuanceServiceSuite) TestUnsupportedCountryFailsVerification() {
	session := s.inProgress("digest", providerRef)
	fields := leaf.DummyIdentity()
	fields.CountryCode = "ZZ"
	s.adapter.EXPECT().FetchVerificationResult(gomock.Any(), providerRef).Return(&fields, nil)

	_, err := s.service.Issue(s.ctx, session.ID, testNullifier)
	s.True(dErrors.HasCode(err, dErrors.CodeVerificationFailed))
	s.Equal(sessions.StatusVerificationFailed, s.stored(session.ID).Status)
}

func (s *IssuanceServiceSuite) TestInvalidInput() {
	_, err := s.service.Issue(s.ctx, id.NewSessionID(), "-5")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.Issue(s.ctx, id.SessionID{}, testNullifier)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.Issue(s.ctx, id.NewSessionID(), testNullifier)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *IssuanceServiceSuite) TestDummyCredentials() {
	svc := New(s.sessions, s.registry, nil, nil, s.signer, WithDummyCredentials())
	creds, err := leaf.Build(leaf.DummyIdentity())
	s.Require().NoError(err)
	s.signer.EXPECT().Issue(gomock.Any(), "42", creds.CountryCodeField(), creds.LeafHash()).Return(bundle, nil)

	issuance, err := svc.Issue(s.ctx, id.SessionID{}, "42")
	s.Require().NoError(err)
	s.Equal(creds.LeafHash(), issuance.Creds.LeafHash())
}
