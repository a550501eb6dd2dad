package referral

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	"refhub/entity"
)

// --- mock store ---

type mockStore struct {
	referrers   []*entity.Referrer
	redemptions []*entity.Redemption

	forceErr         error // returned by every operation when set
	codeAlwaysExists bool  // makes every generated code collide
	dupOnRedemption  bool  // simulates losing the friend-email insert race
	codeChecks       int
}

func newMockStore() *mockStore {
	return &mockStore{}
}

func (m *mockStore) ReferrerByEmail(_ context.Context, email string) (*entity.Referrer, error) {
	if m.forceErr != nil {
		return nil, m.forceErr
	}
	for _, r := range m.referrers {
		if r.Email == email {
			return r, nil
		}
	}
	return nil, nil
}

func (m *mockStore) ReferrerByCode(_ context.Context, code string) (*entity.Referrer, error) {
	if m.forceErr != nil {
		return nil, m.forceErr
	}
	for _, r := range m.referrers {
		if r.Code == code {
			return r, nil
		}
	}
	return nil, nil
}

func (m *mockStore) CodeExists(_ context.Context, code string) (bool, error) {
	if m.forceErr != nil {
		return false, m.forceErr
	}
	m.codeChecks++
	if m.codeAlwaysExists {
		return true, nil
	}
	for _, r := range m.referrers {
		if r.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) CreateReferrer(_ context.Context, referrer *entity.Referrer) error {
	if m.forceErr != nil {
		return m.forceErr
	}
	for _, r := range m.referrers {
		if r.Email == referrer.Email || r.Code == referrer.Code {
			return entity.ErrDuplicate
		}
	}
	m.referrers = append(m.referrers, referrer)
	return nil
}

func (m *mockStore) RedemptionByFriendEmail(_ context.Context, email string) (*entity.Redemption, error) {
	if m.forceErr != nil {
		return nil, m.forceErr
	}
	if m.dupOnRedemption {
		// the race: pre-check sees nothing, insert collides
		return nil, nil
	}
	for _, r := range m.redemptions {
		if r.FriendEmail == email {
			return r, nil
		}
	}
	return nil, nil
}

func (m *mockStore) RedemptionById(_ context.Context, id string) (*entity.Redemption, error) {
	if m.forceErr != nil {
		return nil, m.forceErr
	}
	for _, r := range m.redemptions {
		if r.Id == id {
			return r, nil
		}
	}
	return nil, nil
}

func (m *mockStore) CreateRedemption(_ context.Context, redemption *entity.Redemption) error {
	if m.forceErr != nil {
		return m.forceErr
	}
	if m.dupOnRedemption {
		return entity.ErrDuplicate
	}
	for _, r := range m.redemptions {
		if r.FriendEmail == redemption.FriendEmail {
			return entity.ErrDuplicate
		}
	}
	m.redemptions = append(m.redemptions, redemption)
	return nil
}

func (m *mockStore) IncrementReferralCount(_ context.Context, referrerId string) error {
	if m.forceErr != nil {
		return m.forceErr
	}
	for _, r := range m.referrers {
		if r.Id == referrerId {
			r.ReferralCount++
			return nil
		}
	}
	return fmt.Errorf("referrer not found: %s", referrerId)
}

func (m *mockStore) RedemptionsByReferrer(_ context.Context, referrerId string) ([]*entity.Redemption, error) {
	if m.forceErr != nil {
		return nil, m.forceErr
	}
	var out []*entity.Redemption
	for _, r := range m.redemptions {
		if r.ReferrerId == referrerId {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) Redemptions(_ context.Context) ([]*entity.Redemption, error) {
	if m.forceErr != nil {
		return nil, m.forceErr
	}
	return m.redemptions, nil
}

func (m *mockStore) SetRedemptionStatus(_ context.Context, id string, status entity.RedemptionStatus) error {
	if m.forceErr != nil {
		return m.forceErr
	}
	for _, r := range m.redemptions {
		if r.Id == id {
			r.Status = status
			return nil
		}
	}
	return fmt.Errorf("redemption not found: %s", id)
}

// --- helpers ---

func newTestService(db Database) *Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(db, Config{ReferrerReward: 50, FriendReward: 50}, log)
}

var codePattern = regexp.MustCompile(`^REF-[ABCDEFGHJKLMNPQRSTUVWXYZ23456789]{6}$`)
var fallbackPattern = regexp.MustCompile(`^REF-[A-Z0-9]{6}$`)

// --- tests ---

func TestRegisterIssuesCode(t *testing.T) {
	store := newMockStore()
	s := newTestService(store)

	result := s.Register(context.Background(), "Amy", "amy@u.edu", "")
	if !result.Success {
		t.Fatalf("register failed: %s", result.Error)
	}
	if result.IsExisting {
		t.Fatal("first registration reported as existing")
	}
	if !codePattern.MatchString(result.Referrer.Code) {
		t.Fatalf("issued code %q does not match %s", result.Referrer.Code, codePattern)
	}
	if result.Referrer.ReferralCount != 0 || result.Referrer.Earnings != 0 {
		t.Fatal("new referrer counters are not zero")
	}
	if result.Referrer.Status != entity.StatusActive {
		t.Fatalf("new referrer status = %q, want active", result.Referrer.Status)
	}
}

func TestRegisterIdempotent(t *testing.T) {
	store := newMockStore()
	s := newTestService(store)

	first := s.Register(context.Background(), "Amy", "amy@u.edu", "111")
	second := s.Register(context.Background(), "Amy Updated", "AMY@U.EDU", "222")

	if !second.Success || !second.IsExisting {
		t.Fatalf("repeat registration: success=%v existing=%v", second.Success, second.IsExisting)
	}
	if second.Referrer.Code != first.Referrer.Code {
		t.Fatalf("repeat registration issued a new code: %q vs %q",
			second.Referrer.Code, first.Referrer.Code)
	}
	if len(store.referrers) != 1 {
		t.Fatalf("store holds %d referrers, want 1", len(store.referrers))
	}
	// first write wins: contact details are not refreshed
	if second.Referrer.Name != "Amy" || second.Referrer.Phone != "111" {
		t.Fatalf("repeat registration mutated the record: %+v", second.Referrer)
	}
}

func TestRegisterNormalizesInput(t *testing.T) {
	store := newMockStore()
	s := newTestService(store)

	result := s.Register(context.Background(), "  Jo  ", "  A@B.com  ", "  5  ")
	if !result.Success {
		t.Fatalf("register failed: %s", result.Error)
	}
	if result.Referrer.Name != "Jo" {
		t.Errorf("name = %q, want Jo", result.Referrer.Name)
	}
	if result.Referrer.Email != "a@b.com" {
		t.Errorf("email = %q, want a@b.com", result.Referrer.Email)
	}
	if result.Referrer.Phone != "5" {
		t.Errorf("phone = %q, want 5", result.Referrer.Phone)
	}
}

func TestRegisterStoreFailure(t *testing.T) {
	store := newMockStore()
	store.forceErr = errors.New("connection refused")
	s := newTestService(store)

	result := s.Register(context.Background(), "Amy", "amy@u.edu", "")
	if result.Success {
		t.Fatal("register succeeded against a failing store")
	}
	if result.Error == "" {
		t.Fatal("failure result carries no error message")
	}
}

func TestRegisterDuplicateRace(t *testing.T) {
	store := newMockStore()
	s := newTestService(store)

	// the other writer's record lands between lookup and insert
	winner := &entity.Referrer{Id: "other", Name: "Amy", Email: "amy@u.edu", Code: "REF-AAAAAA"}

	raced := &racingStore{mockStore: store, winner: winner}
	s = newTestService(raced)

	result := s.Register(context.Background(), "Amy", "amy@u.edu", "")
	if !result.Success || !result.IsExisting {
		t.Fatalf("race resolution: success=%v existing=%v err=%s",
			result.Success, result.IsExisting, result.Error)
	}
	if result.Referrer.Id != "other" {
		t.Fatalf("race did not resolve to the winner's record: %+v", result.Referrer)
	}
}

// racingStore reports no referrer on the first email lookup but rejects the
// insert, as a concurrent registration would.
type racingStore struct {
	*mockStore
	winner  *entity.Referrer
	lookups int
}

func (r *racingStore) ReferrerByEmail(ctx context.Context, email string) (*entity.Referrer, error) {
	r.lookups++
	if r.lookups == 1 {
		return nil, nil
	}
	return r.winner, nil
}

func (r *racingStore) CreateReferrer(_ context.Context, _ *entity.Referrer) error {
	return entity.ErrDuplicate
}

func TestUniqueCodeFallback(t *testing.T) {
	store := newMockStore()
	store.codeAlwaysExists = true
	s := newTestService(store)

	result := s.Register(context.Background(), "Amy", "amy@u.edu", "")
	if !result.Success {
		t.Fatalf("register failed: %s", result.Error)
	}
	if store.codeChecks != 10 {
		t.Fatalf("resolver made %d lookups, want 10", store.codeChecks)
	}
	if !fallbackPattern.MatchString(result.Referrer.Code) {
		t.Fatalf("fallback code %q does not match %s", result.Referrer.Code, fallbackPattern)
	}
}

func TestValidate(t *testing.T) {
	store := newMockStore()
	s := newTestService(store)

	registered := s.Register(context.Background(), "Amy", "amy@u.edu", "")
	code := registered.Referrer.Code

	validation := s.Validate(context.Background(), code)
	if !validation.Valid {
		t.Fatalf("fresh code rejected: %s", validation.Error)
	}
	if validation.Referrer.Name != "Amy" {
		t.Errorf("referrer name = %q, want Amy", validation.Referrer.Name)
	}

	// input is case-insensitive and may carry whitespace
	lower := s.Validate(context.Background(), "  "+strings.ToLower(code)+" ")
	if !lower.Valid {
		t.Fatalf("lower-cased code rejected: %s", lower.Error)
	}

	unknown := s.Validate(context.Background(), "REF-ZZZZZZ")
	if unknown.Valid {
		t.Fatal("never-issued code validated")
	}
	if unknown.Error != "Invalid referral code" {
		t.Fatalf("unknown code error = %q", unknown.Error)
	}
}

func TestValidateExposesNoContactDetails(t *testing.T) {
	store := newMockStore()
	s := newTestService(store)

	registered := s.Register(context.Background(), "Amy", "amy@u.edu", "555")
	validation := s.Validate(context.Background(), registered.Referrer.Code)

	if validation.Referrer.Id == "" || validation.Referrer.Name == "" || validation.Referrer.Code == "" {
		t.Fatalf("projection incomplete: %+v", validation.Referrer)
	}
}

func TestRedeemOncePerEmail(t *testing.T) {
	store := newMockStore()
	s := newTestService(store)

	code := s.Register(context.Background(), "Amy", "amy@u.edu", "").Referrer.Code

	first := s.Redeem(context.Background(), code, "Bo", "bo@u.edu", "")
	if !first.Success {
		t.Fatalf("first redemption failed: %s", first.Error)
	}
	if first.ReferrerReward != 50 || first.FriendReward != 50 {
		t.Fatalf("rewards = %d/%d, want 50/50", first.ReferrerReward, first.FriendReward)
	}

	// same friend email under a different name fails; no second record
	second := s.Redeem(context.Background(), code, "Bo2", "bo@u.edu", "")
	if second.Success {
		t.Fatal("second redemption for the same email succeeded")
	}
	if second.Error != "This email has already used a referral code" {
		t.Fatalf("second redemption error = %q", second.Error)
	}
	if len(store.redemptions) != 1 {
		t.Fatalf("store holds %d redemptions, want 1", len(store.redemptions))
	}
	if store.referrers[0].ReferralCount != 1 {
		t.Fatalf("referral count = %d, want 1", store.referrers[0].ReferralCount)
	}
}

func TestRedeemInvalidCodeNoSideEffects(t *testing.T) {
	store := newMockStore()
	s := newTestService(store)

	result := s.Redeem(context.Background(), "REF-ZZZZZZ", "Bo", "bo@u.edu", "")
	if result.Success {
		t.Fatal("redemption of unknown code succeeded")
	}
	if result.Error != "Invalid referral code" {
		t.Fatalf("error = %q", result.Error)
	}
	if len(store.redemptions) != 0 {
		t.Fatal("redemption of unknown code wrote a record")
	}
}

func TestRedeemDuplicateRace(t *testing.T) {
	store := newMockStore()
	s := newTestService(store)

	code := s.Register(context.Background(), "Amy", "amy@u.edu", "").Referrer.Code
	store.dupOnRedemption = true

	result := s.Redeem(context.Background(), code, "Bo", "bo@u.edu", "")
	if result.Success {
		t.Fatal("raced redemption succeeded")
	}
	if result.Error != "This email has already used a referral code" {
		t.Fatalf("raced redemption error = %q", result.Error)
	}
	if store.referrers[0].ReferralCount != 0 {
		t.Fatal("raced redemption incremented the counter")
	}
}

func TestSequentialRedemptionsCount(t *testing.T) {
	store := newMockStore()
	s := newTestService(store)

	code := s.Register(context.Background(), "Amy", "amy@u.edu", "").Referrer.Code

	const n = 5
	for i := 0; i < n; i++ {
		email := fmt.Sprintf("friend%d@u.edu", i)
		result := s.Redeem(context.Background(), code, "Friend", email, "")
		if !result.Success {
			t.Fatalf("redemption %d failed: %s", i, result.Error)
		}
	}
	if store.referrers[0].ReferralCount != n {
		t.Fatalf("referral count = %d, want %d", store.referrers[0].ReferralCount, n)
	}
}

func TestRedemptionSnapshotsReferrerName(t *testing.T) {
	store := newMockStore()
	s := newTestService(store)

	code := s.Register(context.Background(), "Amy", "amy@u.edu", "").Referrer.Code
	s.Redeem(context.Background(), code, "Bo", "bo@u.edu", "")

	// a later rename must not rewrite redemption history
	store.referrers[0].Name = "Amelia"
	if store.redemptions[0].ReferrerName != "Amy" {
		t.Fatalf("snapshot name = %q, want Amy", store.redemptions[0].ReferrerName)
	}
	if store.redemptions[0].Status != entity.RedemptionPending {
		t.Fatalf("new redemption status = %q, want pending", store.redemptions[0].Status)
	}
}

func TestStats(t *testing.T) {
	store := newMockStore()
	s := newTestService(store)

	missing := s.Stats(context.Background(), "nobody@u.edu")
	if missing.Found {
		t.Fatal("stats found a referrer that was never registered")
	}
	if missing.Error != "" {
		t.Fatalf("missing referrer reported an error: %s", missing.Error)
	}

	code := s.Register(context.Background(), "Amy", "amy@u.edu", "").Referrer.Code
	for i := 0; i < 3; i++ {
		s.Redeem(context.Background(), code, "Friend", fmt.Sprintf("f%d@u.edu", i), "")
	}

	stats := s.Stats(context.Background(), "AMY@U.EDU")
	if !stats.Found {
		t.Fatal("stats did not find the registered referrer")
	}
	if len(stats.Referrals) != 3 {
		t.Fatalf("referrals length = %d, want 3", len(stats.Referrals))
	}
	if stats.Referrer.ReferralCount != 3 {
		t.Fatalf("referral count = %d, want 3", stats.Referrer.ReferralCount)
	}
}

func TestFullScenario(t *testing.T) {
	store := newMockStore()
	s := newTestService(store)

	registered := s.Register(context.Background(), "Amy", "amy@u.edu", "")
	if !registered.Success {
		t.Fatalf("register: %s", registered.Error)
	}
	code := registered.Referrer.Code

	validation := s.Validate(context.Background(), code)
	if !validation.Valid || validation.Referrer.Name != "Amy" {
		t.Fatalf("validate: %+v", validation)
	}

	redeemed := s.Redeem(context.Background(), code, "Bo", "bo@u.edu", "")
	if !redeemed.Success || redeemed.ReferrerReward != 50 || redeemed.FriendReward != 50 {
		t.Fatalf("redeem: %+v", redeemed)
	}

	repeat := s.Redeem(context.Background(), code, "Bo2", "bo@u.edu", "")
	if repeat.Success || repeat.Error != "This email has already used a referral code" {
		t.Fatalf("repeat redeem: %+v", repeat)
	}

	stats := s.Stats(context.Background(), "amy@u.edu")
	if !stats.Found || stats.Referrer.ReferralCount != 1 || len(stats.Referrals) != 1 {
		t.Fatalf("stats: found=%v count=%d referrals=%d",
			stats.Found, stats.Referrer.ReferralCount, len(stats.Referrals))
	}
}

func TestSetRedemptionStatus(t *testing.T) {
	store := newMockStore()
	s := newTestService(store)

	code := s.Register(context.Background(), "Amy", "amy@u.edu", "").Referrer.Code
	redeemed := s.Redeem(context.Background(), code, "Bo", "bo@u.edu", "")

	// pending cannot jump straight to paid
	if _, err := s.SetRedemptionStatus(context.Background(), redeemed.RedemptionId, entity.RedemptionPaid); err == nil {
		t.Fatal("pending -> paid transition allowed")
	}

	verified, err := s.SetRedemptionStatus(context.Background(), redeemed.RedemptionId, entity.RedemptionVerified)
	if err != nil {
		t.Fatalf("pending -> verified: %v", err)
	}
	if verified.Status != entity.RedemptionVerified {
		t.Fatalf("status = %q, want verified", verified.Status)
	}

	if _, err = s.SetRedemptionStatus(context.Background(), redeemed.RedemptionId, entity.RedemptionPaid); err != nil {
		t.Fatalf("verified -> paid: %v", err)
	}

	// paid is terminal
	if _, err = s.SetRedemptionStatus(context.Background(), redeemed.RedemptionId, entity.RedemptionVerified); err == nil {
		t.Fatal("paid -> verified transition allowed")
	}

	if _, err = s.SetRedemptionStatus(context.Background(), "no-such-id", entity.RedemptionVerified); err == nil {
		t.Fatal("status change on unknown redemption succeeded")
	}
}
