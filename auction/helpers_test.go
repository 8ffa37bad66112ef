package auction_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"pennybid/auction"
	"pennybid/models"
)

// silentLogger 回傳一個丟棄所有輸出的logger，避免測試輸出被日誌淹沒
func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errUnknownUser = errors.New("unknown user")

// fixedClock 回傳一個永遠報告同一時刻的時間來源
func fixedClock(at time.Time) func() time.Time {
	return func() time.Time {
		return at
	}
}

type fakeUser struct {
	balance int64
	email   string
}

type bidRecord struct {
	auctionID uuid.UUID
	bidderID  uuid.UUID
	amount    int64
}

type holdingRecord struct {
	userID    uuid.UUID
	auctionID uuid.UUID
}

// fakeLedger 是一個行程內的 auction.ILedger 實作，
// 模擬真實持久層的關鍵行為：樂觀鎖版本檢查、餘額不足拒絕、重複報名拒絕，
// 以及 InTransaction 的全有或全無語義(fn回傳錯誤時還原所有變更)。
type fakeLedger struct {
	mu   sync.Mutex
	txMu sync.Mutex

	auctions    map[uuid.UUID]*models.Auction
	users       map[uuid.UUID]*fakeUser
	enrollments map[uuid.UUID][]uuid.UUID
	bids        []bidRecord
	holdings    []holdingRecord

	// 錯誤注入
	countEnrollmentsErr map[uuid.UUID]error
	userEmailErr        error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		auctions:            make(map[uuid.UUID]*models.Auction),
		users:               make(map[uuid.UUID]*fakeUser),
		enrollments:         make(map[uuid.UUID][]uuid.UUID),
		countEnrollmentsErr: make(map[uuid.UUID]error),
	}
}

func (l *fakeLedger) addAuction(a models.Auction) uuid.UUID {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	l.auctions[a.ID] = &a
	return a.ID
}

func (l *fakeLedger) addUser(balance int64, email string) uuid.UUID {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := uuid.New()
	l.users[id] = &fakeUser{balance: balance, email: email}
	return id
}

func (l *fakeLedger) enroll(auctionID, userID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enrollments[auctionID] = append(l.enrollments[auctionID], userID)
}

func (l *fakeLedger) auctionState(id uuid.UUID) models.Auction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.auctions[id]
}

func (l *fakeLedger) balance(id uuid.UUID) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.users[id].balance
}

func (l *fakeLedger) bidCount(auctionID uuid.UUID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for _, bid := range l.bids {
		if bid.auctionID == auctionID {
			count++
		}
	}
	return count
}

func (l *fakeLedger) heldBy(userID uuid.UUID) []uuid.UUID {
	l.mu.Lock()
	defer l.mu.Unlock()
	var held []uuid.UUID
	for _, h := range l.holdings {
		if h.userID == userID {
			held = append(held, h.auctionID)
		}
	}
	return held
}

func (l *fakeLedger) GetAuction(_ context.Context, id uuid.UUID) (*models.Auction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.auctions[id]
	if !ok {
		return nil, auction.ErrAuctionNotFound
	}
	snapshot := *a
	return &snapshot, nil
}

func (l *fakeLedger) ListAuctionsByStatus(_ context.Context, status models.AuctionStatus) ([]models.Auction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Auction
	for _, a := range l.auctions {
		if a.Status == status {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (l *fakeLedger) UpdateAuctionState(_ context.Context, id uuid.UUID, expectedVersion uint64, update auction.AuctionUpdate) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.auctions[id]
	if !ok {
		return auction.ErrAuctionNotFound
	}
	if a.Version != expectedVersion {
		return auction.ErrConflict
	}
	if update.Status != nil {
		a.Status = *update.Status
	}
	if update.Deadline != nil {
		a.Deadline = update.Deadline
	}
	if update.LeaderID != nil {
		a.LeaderID = update.LeaderID
	}
	if update.LeaderBidAmount != nil {
		a.LeaderBidAmount = *update.LeaderBidAmount
	}
	if update.WinnerID != nil {
		a.WinnerID = update.WinnerID
	}
	a.Version++
	return nil
}

func (l *fakeLedger) AppendBid(_ context.Context, auctionID, bidderID uuid.UUID, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bids = append(l.bids, bidRecord{auctionID: auctionID, bidderID: bidderID, amount: amount})
	return nil
}

func (l *fakeLedger) CountEnrollments(_ context.Context, auctionID uuid.UUID) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, ok := l.countEnrollmentsErr[auctionID]; ok {
		return 0, err
	}
	return int64(len(l.enrollments[auctionID])), nil
}

func (l *fakeLedger) IsEnrolled(_ context.Context, auctionID, userID uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range l.enrollments[auctionID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (l *fakeLedger) CreateEnrollment(_ context.Context, auctionID, userID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range l.enrollments[auctionID] {
		if id == userID {
			return auction.ErrAlreadyEnrolled
		}
	}
	l.enrollments[auctionID] = append(l.enrollments[auctionID], userID)
	return nil
}

func (l *fakeLedger) ListEnrolledEmails(_ context.Context, auctionID uuid.UUID) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var emails []string
	for _, id := range l.enrollments[auctionID] {
		emails = append(emails, l.users[id].email)
	}
	return emails, nil
}

func (l *fakeLedger) GetBalance(_ context.Context, userID uuid.UUID) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[userID]
	if !ok {
		return 0, errUnknownUser
	}
	return u.balance, nil
}

func (l *fakeLedger) GetUserEmail(_ context.Context, userID uuid.UUID) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.userEmailErr != nil {
		return "", l.userEmailErr
	}
	u, ok := l.users[userID]
	if !ok {
		return "", errUnknownUser
	}
	return u.email, nil
}

func (l *fakeLedger) AdjustBalance(_ context.Context, userID uuid.UUID, delta int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[userID]
	if !ok {
		return errUnknownUser
	}
	if delta < 0 && u.balance < -delta {
		return auction.ErrInsufficientBalance
	}
	u.balance += delta
	return nil
}

func (l *fakeLedger) PlaceInHolding(_ context.Context, userID, auctionID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, h := range l.holdings {
		if h.userID == userID && h.auctionID == auctionID {
			return nil
		}
	}
	l.holdings = append(l.holdings, holdingRecord{userID: userID, auctionID: auctionID})
	return nil
}

// InTransaction 先對整個狀態製作快照，fn回傳錯誤時整份還原。
// 交易彼此完全序列化，避免還原快照時蓋掉其他交易的變更。
func (l *fakeLedger) InTransaction(_ context.Context, fn func(tx auction.ILedger) error) error {
	l.txMu.Lock()
	defer l.txMu.Unlock()
	snapshot := l.snapshot()
	if err := fn(l); err != nil {
		l.restore(snapshot)
		return err
	}
	return nil
}

type ledgerSnapshot struct {
	auctions    map[uuid.UUID]models.Auction
	balances    map[uuid.UUID]int64
	enrollments map[uuid.UUID][]uuid.UUID
	bids        []bidRecord
	holdings    []holdingRecord
}

func (l *fakeLedger) snapshot() ledgerSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := ledgerSnapshot{
		auctions:    make(map[uuid.UUID]models.Auction, len(l.auctions)),
		balances:    make(map[uuid.UUID]int64, len(l.users)),
		enrollments: make(map[uuid.UUID][]uuid.UUID, len(l.enrollments)),
		bids:        append([]bidRecord(nil), l.bids...),
		holdings:    append([]holdingRecord(nil), l.holdings...),
	}
	for id, a := range l.auctions {
		s.auctions[id] = *a
	}
	for id, u := range l.users {
		s.balances[id] = u.balance
	}
	for id, users := range l.enrollments {
		s.enrollments[id] = append([]uuid.UUID(nil), users...)
	}
	return s
}

func (l *fakeLedger) restore(s ledgerSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, a := range s.auctions {
		copied := a
		l.auctions[id] = &copied
	}
	for id, balance := range s.balances {
		l.users[id].balance = balance
	}
	l.enrollments = s.enrollments
	l.bids = s.bids
	l.holdings = s.holdings
}

type sentMail struct {
	recipient string
	subject   string
	body      string
}

// recordingMailer 記錄所有寄出的信件供測試檢查
type recordingMailer struct {
	mu    sync.Mutex
	mails []sentMail
	err   error
}

func (m *recordingMailer) Send(_ context.Context, recipient, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.mails = append(m.mails, sentMail{recipient: recipient, subject: subject, body: body})
	return nil
}

func (m *recordingMailer) sent() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.mails...)
}

// recordingBroadcaster 記錄所有發布的事件供測試檢查
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []auction.Event
	err    error
}

func (b *recordingBroadcaster) Publish(_ context.Context, event auction.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBroadcaster) published() []auction.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]auction.Event(nil), b.events...)
}
