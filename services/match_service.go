package services

import (
	"errors"
	"log"

	"memory-match-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// MatchService orchestrates the registry, the grid store and the token
// service into the player-facing operations. Handlers validate identity and
// legality up front, but every decision that matters is re-checked inside the
// stores' conditional updates — validation here only produces better error
// messages, never correctness.
type MatchService struct {
	DB       *gorm.DB
	Registry *MatchRegistry
	Store    *GridSlotStore
	Tokens   *TokenService
}

func NewMatchService(db *gorm.DB, tokens *TokenService) *MatchService {
	return &MatchService{
		DB:       db,
		Registry: NewMatchRegistry(db),
		Store:    NewGridSlotStore(db),
		Tokens:   tokens,
	}
}

// MatchView is the full client-facing match state, including the display
// attributes of both seats resolved from the guest snapshot table.
type MatchView struct {
	MatchID           string  `json:"match_id"`
	State             string  `json:"state"`
	Player1ID         string  `json:"player1_id"`
	Player2ID         *string `json:"player2_id,omitempty"`
	Player1Username   string  `json:"player1username,omitempty"`
	Player2Username   string  `json:"player2username,omitempty"`
	Player1IconNumber int     `json:"player1_icon_number,omitempty"`
	Player2IconNumber int     `json:"player2_icon_number,omitempty"`
	Player1Score      int     `json:"player1_score"`
	Player2Score      int     `json:"player2_score"`
	TurnPlayerID      *string `json:"turn_player_id,omitempty"`
}

// SlotView is one grid cell as clients see it. Hidden slots carry no pair
// value or image — the card face is only disclosed once revealed.
type SlotView struct {
	SlotID      string `json:"slot_id"`
	Row         int    `json:"row"`
	Col         int    `json:"col"`
	State       string `json:"state"`
	Value       int    `json:"value,omitempty"`
	Variant     string `json:"variant,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Description string `json:"description,omitempty"`
}

// FlipResult reports the effect of one reveal.
type FlipResult struct {
	Slot          SlotView `json:"slot"`
	PairCompleted bool     `json:"pair_completed"`
	PairMatched   bool     `json:"pair_matched"`
	MatchFinished bool     `json:"match_finished"`
	RevealedIDs   []string `json:"revealed_slot_ids"`
}

// ResolveResult reports the effect of resolving a pending pair.
type ResolveResult struct {
	Outcome         string `json:"outcome"` // "matched" or "reset"
	AlreadyResolved bool   `json:"already_resolved"`
	MatchFinished   bool   `json:"match_finished"`
}

func slotView(slot models.GridSlot) SlotView {
	v := SlotView{
		SlotID: slot.ID,
		Row:    slot.RowPos,
		Col:    slot.ColPos,
		State:  slot.State,
	}
	if slot.State != models.SlotStateHidden {
		v.Value = slot.PairValue
		v.Variant = slot.Variant
		v.ImageURL = slot.ImageURL
		v.Description = slot.Description
	}
	return v
}

// --- core protocol -------------------------------------------------------

// matchmake runs the full matchmaking protocol for one caller: sweep the
// caller's own stale waiting matches, try to join an existing waiting match
// (with one retry when another caller wins the race), and otherwise create a
// fresh waiting match with its grid dealt up front so it is playable the
// instant an opponent joins.
func (s *MatchService) matchmake(playerID string) (*models.Match, error) {
	if _, err := s.Registry.CancelStaleWaiting(playerID); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		matchID, err := s.Registry.ClaimWaiting(playerID)
		if errors.Is(err, ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		err = s.Registry.Join(matchID, playerID)
		if err == nil {
			return s.Registry.Get(matchID)
		}
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
			// Someone else joined first — rediscover once, then give up
			// and create our own.
			continue
		}
		return nil, err
	}

	m, err := s.Registry.CreateWaiting(playerID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Store.Deal(m.ID); err != nil {
		return nil, err
	}
	return m, nil
}

// createMatch inserts a waiting match for the caller and deals its grid.
func (s *MatchService) createMatch(playerID string) (*models.Match, error) {
	m, err := s.Registry.CreateWaiting(playerID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Store.Deal(m.ID); err != nil {
		return nil, err
	}
	return m, nil
}

// flip runs the turn/flip protocol for a single slot. If this reveal
// completes a matching pair the pair is resolved immediately: both slots
// marked, the caller scored, the match finished when the board is cleared.
// A mismatched pair is left revealed for the client's resolve call (or the
// sweeper).
func (s *MatchService) flip(matchID, callerID, slotID string) (*FlipResult, error) {
	m, err := s.Registry.Get(matchID)
	if err != nil {
		return nil, err
	}
	if m.State != models.MatchStatePlaying {
		return nil, ErrInvalidState
	}
	if !m.IsParticipant(callerID) {
		return nil, ErrForbidden
	}
	if !m.IsTurnOf(callerID) {
		return nil, ErrForbidden
	}

	if err := s.Store.Reveal(matchID, slotID, callerID); err != nil {
		return nil, err
	}

	revealed, err := s.Store.RevealedByMatch(matchID)
	if err != nil {
		return nil, err
	}

	result := &FlipResult{}
	for _, slot := range revealed {
		result.RevealedIDs = append(result.RevealedIDs, slot.ID)
		if slot.ID == slotID {
			result.Slot = slotView(slot)
		}
	}

	if len(revealed) == 2 {
		result.PairCompleted = true
		if revealed[0].PairValue == revealed[1].PairValue {
			result.PairMatched = true
			finished, err := s.scorePair(matchID, callerID, []string{revealed[0].ID, revealed[1].ID})
			if err != nil {
				return nil, err
			}
			result.MatchFinished = finished
		}
	}
	return result, nil
}

// scorePair marks a revealed equal-value pair as matched, awards the point to
// callerID only when the slots actually transitioned (a replay affects zero
// rows and scores nothing), and finishes the match once the board is cleared.
func (s *MatchService) scorePair(matchID, callerID string, slotIDs []string) (finished bool, err error) {
	n, err := s.Store.MarkMatched(matchID, slotIDs)
	if err != nil {
		return false, err
	}
	if n > 0 {
		if err := s.Registry.IncrementScore(matchID, callerID); err != nil && !errors.Is(err, ErrConflict) {
			return false, err
		}
	}
	done, err := s.Store.AllMatched(matchID)
	if err != nil {
		return false, err
	}
	if !done {
		return false, nil
	}
	if err := s.Registry.Finish(matchID); err != nil && !errors.Is(err, ErrConflict) {
		return false, err
	}
	// ErrConflict here means another handler finished it first — same outcome.
	return true, nil
}

// resolvePair settles a pending revealed pair: equal values are matched and
// scored, unequal values are reset with the turn handed to the opponent.
// Replays of an already settled pair acknowledge without side effects.
func (s *MatchService) resolvePair(matchID, callerID string, slotIDs []string) (*ResolveResult, error) {
	if len(slotIDs) != 2 || slotIDs[0] == slotIDs[1] {
		return nil, ErrMalformedInput
	}

	m, err := s.Registry.Get(matchID)
	if err != nil {
		return nil, err
	}
	if !m.IsParticipant(callerID) {
		return nil, ErrForbidden
	}

	slots, err := s.Store.GetSlots(matchID, slotIDs)
	if err != nil {
		return nil, err
	}
	if len(slots) != 2 {
		return nil, ErrNotFound
	}

	both := func(state string) bool {
		return slots[0].State == state && slots[1].State == state
	}

	// A retried resolve of an already matched pair must not double-score.
	if both(models.SlotStateMatched) {
		return &ResolveResult{
			Outcome:         "matched",
			AlreadyResolved: true,
			MatchFinished:   m.State == models.MatchStateFinished,
		}, nil
	}
	// Already swept back to hidden (mismatch settled by a retry or the sweeper).
	if both(models.SlotStateHidden) {
		return &ResolveResult{Outcome: "reset", AlreadyResolved: true}, nil
	}

	if m.State != models.MatchStatePlaying {
		return nil, ErrInvalidState
	}
	if !both(models.SlotStateRevealed) {
		return nil, ErrConflict
	}
	if !m.IsTurnOf(callerID) {
		return nil, ErrForbidden
	}

	if slots[0].PairValue == slots[1].PairValue {
		finished, err := s.scorePair(matchID, callerID, slotIDs)
		if err != nil {
			return nil, err
		}
		return &ResolveResult{Outcome: "matched", MatchFinished: finished}, nil
	}

	n, err := s.Store.ResetToHidden(matchID, slotIDs)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Another settle path (a retry or the sweeper) reset the pair between
		// our read and this write. That path already switched the turn; a
		// second switch would hand it straight back.
		return &ResolveResult{Outcome: "reset", AlreadyResolved: true}, nil
	}
	if err := s.Registry.SwitchTurn(matchID); err != nil && !errors.Is(err, ErrConflict) {
		return nil, err
	}
	return &ResolveResult{Outcome: "reset"}, nil
}

// finishMatch transitions playing→finished once the board is cleared.
// Idempotent: finishing an already finished match succeeds without effect.
func (s *MatchService) finishMatch(matchID, callerID string) (*models.Match, error) {
	m, err := s.Registry.Get(matchID)
	if err != nil {
		return nil, err
	}
	if !m.IsParticipant(callerID) {
		return nil, ErrForbidden
	}
	if m.State == models.MatchStateFinished {
		return m, nil
	}
	if m.State != models.MatchStatePlaying {
		return nil, ErrInvalidState
	}
	done, err := s.Store.AllMatched(matchID)
	if err != nil {
		return nil, err
	}
	if !done {
		return nil, ErrInvalidState
	}
	if err := s.Registry.Finish(matchID); err != nil {
		if errors.Is(err, ErrConflict) {
			// Lost the race to the other player's finish — re-read.
			m, err = s.Registry.Get(matchID)
			if err != nil {
				return nil, err
			}
			if m.State == models.MatchStateFinished {
				return m, nil
			}
			return nil, ErrInvalidState
		}
		return nil, err
	}
	return s.Registry.Get(matchID)
}

// cancelMatch ends a waiting or playing match by explicit player action.
func (s *MatchService) cancelMatch(matchID, callerID string) error {
	m, err := s.Registry.Get(matchID)
	if err != nil {
		return err
	}
	if !m.IsParticipant(callerID) {
		return ErrForbidden
	}
	if err := s.Registry.Cancel(matchID); err != nil {
		if errors.Is(err, ErrConflict) {
			return ErrInvalidState
		}
		return err
	}
	return nil
}

// matchView resolves the display attributes of both seats from the guest
// snapshot table.
func (s *MatchService) matchView(m *models.Match) (*MatchView, error) {
	view := &MatchView{
		MatchID:      m.ID,
		State:        m.State,
		Player1ID:    m.Player1ID,
		Player2ID:    m.Player2ID,
		Player1Score: m.Player1Score,
		Player2Score: m.Player2Score,
		TurnPlayerID: m.TurnPlayerID,
	}

	ids := []string{m.Player1ID}
	if m.Player2ID != nil {
		ids = append(ids, *m.Player2ID)
	}
	var users []models.GuestUser
	if err := s.DB.Where("user_id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.UserID == m.Player1ID {
			view.Player1Username = u.Username
			view.Player1IconNumber = u.ProfileIconNumber
		}
		if m.Player2ID != nil && u.UserID == *m.Player2ID {
			view.Player2Username = u.Username
			view.Player2IconNumber = u.ProfileIconNumber
		}
	}
	return view, nil
}

// --- HTTP handlers -------------------------------------------------------

func guestID(c *fiber.Ctx) string {
	id, _ := c.Locals("guest_id").(string)
	return id
}

// requireBinding checks the match binding token against the :id route param.
// Identity and binding are independent capabilities; both are re-verified on
// every call rather than cached.
func (s *MatchService) requireBinding(c *fiber.Ctx) error {
	token := c.Get("X-Match-Token")
	if token == "" {
		return ErrUnauthorized
	}
	matchID, err := s.Tokens.VerifyMatchBinding(token)
	if err != nil {
		return err
	}
	if matchID != c.Params("id") {
		return ErrForbidden
	}
	return nil
}

func (s *MatchService) respondMatch(c *fiber.Ctx, m *models.Match) error {
	token, err := s.Tokens.IssueMatchBinding(m.ID)
	if err != nil {
		log.Printf("[MATCH] failed to issue binding for %s: %v", m.ID, err)
		return respondError(c, err)
	}
	view, err := s.matchView(m)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"match": view, "match_token": token})
}

// CreateMatch creates a waiting match for the caller and deals its grid.
func (s *MatchService) CreateMatch(c *fiber.Ctx) error {
	m, err := s.createMatch(guestID(c))
	if err != nil {
		log.Printf("[MATCH] create failed for %s: %v", guestID(c), err)
		return respondError(c, err)
	}
	return s.respondMatch(c, m)
}

// FindMatch runs the full matchmaking protocol for the caller.
func (s *MatchService) FindMatch(c *fiber.Ctx) error {
	m, err := s.matchmake(guestID(c))
	if err != nil {
		log.Printf("[MATCH] matchmake failed for %s: %v", guestID(c), err)
		return respondError(c, err)
	}
	return s.respondMatch(c, m)
}

// JoinMatch joins a specific waiting match; exactly one of N racing joiners
// succeeds.
func (s *MatchService) JoinMatch(c *fiber.Ctx) error {
	matchID := c.Params("id")
	if err := s.Registry.Join(matchID, guestID(c)); err != nil {
		return respondError(c, err)
	}
	m, err := s.Registry.Get(matchID)
	if err != nil {
		return respondError(c, err)
	}
	return s.respondMatch(c, m)
}

// GetMatch returns the full match view including per-player display
// attributes.
func (s *MatchService) GetMatch(c *fiber.Ctx) error {
	m, err := s.Registry.Get(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	if !m.IsParticipant(guestID(c)) {
		return respondError(c, ErrForbidden)
	}
	view, err := s.matchView(m)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

// GetCurrentTurn is the cheap high-frequency poll target.
func (s *MatchService) GetCurrentTurn(c *fiber.Ctx) error {
	m, err := s.Registry.Get(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	caller := guestID(c)
	if !m.IsParticipant(caller) {
		return respondError(c, ErrForbidden)
	}
	return c.JSON(fiber.Map{
		"state":          m.State,
		"turn_player_id": m.TurnPlayerID,
		"is_caller_turn": m.IsTurnOf(caller),
	})
}

// ListSlots returns the full grid snapshot; hidden faces are not disclosed.
func (s *MatchService) ListSlots(c *fiber.Ctx) error {
	m, err := s.Registry.Get(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	if !m.IsParticipant(guestID(c)) {
		return respondError(c, ErrForbidden)
	}
	slots, err := s.Store.ListByMatch(m.ID)
	if err != nil {
		return respondError(c, err)
	}
	views := make([]SlotView, 0, len(slots))
	for _, slot := range slots {
		views = append(views, slotView(slot))
	}
	return c.JSON(fiber.Map{"match_id": m.ID, "slots": views})
}

// ActiveMatch returns the playing match the caller is seated in, if any.
func (s *MatchService) ActiveMatch(c *fiber.Ctx) error {
	m, err := s.Registry.ActiveMatchFor(guestID(c))
	if err != nil {
		return respondError(c, err)
	}
	return s.respondMatch(c, m)
}

// FlipSlot reveals one slot for the caller.
func (s *MatchService) FlipSlot(c *fiber.Ctx) error {
	if err := s.requireBinding(c); err != nil {
		return respondError(c, err)
	}
	var body struct {
		SlotID string `json:"slot_id"`
	}
	if err := c.BodyParser(&body); err != nil || body.SlotID == "" {
		return respondError(c, ErrMalformedInput)
	}
	result, err := s.flip(c.Params("id"), guestID(c), body.SlotID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// ResolvePendingPair settles a revealed pair (reset-or-match plus score and
// turn effects).
func (s *MatchService) ResolvePendingPair(c *fiber.Ctx) error {
	if err := s.requireBinding(c); err != nil {
		return respondError(c, err)
	}
	var body struct {
		SlotIDs []string `json:"slot_ids"`
	}
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, ErrMalformedInput)
	}
	result, err := s.resolvePair(c.Params("id"), guestID(c), body.SlotIDs)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// FinishMatch finishes a cleared board; idempotent when already finished.
func (s *MatchService) FinishMatch(c *fiber.Ctx) error {
	if err := s.requireBinding(c); err != nil {
		return respondError(c, err)
	}
	m, err := s.finishMatch(c.Params("id"), guestID(c))
	if err != nil {
		return respondError(c, err)
	}
	view, err := s.matchView(m)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

// CancelMatch cancels a waiting or playing match.
func (s *MatchService) CancelMatch(c *fiber.Ctx) error {
	if err := s.requireBinding(c); err != nil {
		return respondError(c, err)
	}
	if err := s.cancelMatch(c.Params("id"), guestID(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "match cancelled"})
}

// CancelStaleWaiting sweeps the caller's own orphaned waiting matches.
func (s *MatchService) CancelStaleWaiting(c *fiber.Ctx) error {
	count, err := s.Registry.CancelStaleWaiting(guestID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"cancelled": count})
}
