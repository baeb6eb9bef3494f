package leaderboard

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/ecgtrainer/gamification-engine/internal/config"
	"github.com/ecgtrainer/gamification-engine/internal/models"
	"github.com/ecgtrainer/gamification-engine/internal/repository"
	"github.com/ecgtrainer/gamification-engine/pkg/logger"
	"github.com/ecgtrainer/gamification-engine/test/mocks"
)

// Mock repositories for testing
type mockStatsRepository struct {
	rows []models.UserGamificationStats
	err  error
}

func (m *mockStatsRepository) sorted() []models.UserGamificationStats {
	out := append([]models.UserGamificationStats(nil), m.rows...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalXP != out[j].TotalXP {
			return out[i].TotalXP > out[j].TotalXP
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func (m *mockStatsRepository) GetByUserID(ctx context.Context, userID uint) (*models.UserGamificationStats, error) {
	for i := range m.rows {
		if m.rows[i].UserID == userID {
			row := m.rows[i]
			return &row, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockStatsRepository) Top(ctx context.Context, limit int) ([]models.UserGamificationStats, error) {
	if m.err != nil {
		return nil, m.err
	}
	rows := m.sorted()
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m *mockStatsRepository) CountAbove(ctx context.Context, xp int64) (int64, error) {
	var n int64
	for _, r := range m.rows {
		if r.TotalXP > xp {
			n++
		}
	}
	return n, nil
}

func (m *mockStatsRepository) Count(ctx context.Context) (int64, error) {
	return int64(len(m.rows)), nil
}

type mockAchievementRepository struct {
	earned map[uint][]uint
}

func (m *mockAchievementRepository) EarnedIDs(ctx context.Context, userID uint) ([]uint, error) {
	return m.earned[userID], nil
}

type staticConfig struct{ cfg models.GamificationConfig }

func (s staticConfig) Get(ctx context.Context) (*models.GamificationConfig, error) {
	cp := s.cfg
	return &cp, nil
}

// Test setup helper
func setupTestService(topN int, xp ...int64) (*Service, *mockStatsRepository, *mocks.MockProfileRepository) {
	statsRepo := &mockStatsRepository{}
	for i, v := range xp {
		statsRepo.rows = append(statsRepo.rows, models.UserGamificationStats{UserID: uint(i + 1), TotalXP: v, CurrentLevel: 1})
	}
	profiles := &mocks.MockProfileRepository{
		DisplayNamesFunc: func(ctx context.Context, ids []uint) (map[uint]string, error) {
			names := make(map[uint]string, len(ids))
			for _, id := range ids {
				names[id] = "user-" + string(rune('a'+id-1))
			}
			return names, nil
		},
	}
	achievements := &mockAchievementRepository{earned: map[uint][]uint{1: {1, 2, 3}}}

	cfg := models.DefaultGamificationConfig()
	cfg.RankingTopNVisible = topN
	limits := config.GamificationConfig{LeaderboardDefaultLimit: 10, LeaderboardMaxLimit: 3}

	service := NewServiceWithInterfaces(statsRepo, profiles, achievements, staticConfig{cfg: cfg}, limits, logger.Nop())
	return service, statsRepo, profiles
}

func TestGetLeaderboard(t *testing.T) {
	service, _, _ := setupTestService(2, 500, 900, 300, 900, 100)

	board, err := service.GetLeaderboard(context.Background(), 3, 50)
	if err != nil {
		t.Fatalf("GetLeaderboard failed: %v", err)
	}

	if len(board.Entries) != 3 {
		t.Fatalf("Expected limit clamped to 3 entries, got %d", len(board.Entries))
	}

	wantIDs := []uint{2, 4, 1}
	wantRanks := []int64{1, 1, 3}
	for i, e := range board.Entries {
		if e.UserID != wantIDs[i] || e.Rank != wantRanks[i] {
			t.Errorf("Entry %d: expected user %d rank %d, got user %d rank %d", i, wantIDs[i], wantRanks[i], e.UserID, e.Rank)
		}
	}

	// user 3 has 300 XP: three users above, rank 4 of 5
	if board.UserRank != 4 {
		t.Errorf("Expected rank 4, got %d", board.UserRank)
	}
	if board.TotalUsers != 5 {
		t.Errorf("Expected 5 users, got %d", board.TotalUsers)
	}
	if board.Percentile != 40 {
		t.Errorf("Expected percentile 40, got %d", board.Percentile)
	}
	if board.IsInTopN {
		t.Error("Rank 4 should be outside a top 2 cut")
	}

	if board.Entries[0].DisplayName == "" || board.Entries[1].DisplayName == "" {
		t.Error("Entries inside the cut should carry names")
	}
	if board.Entries[2].DisplayName != "" {
		t.Errorf("Entry below the cut should be anonymous, got %q", board.Entries[2].DisplayName)
	}
}

func TestGetLeaderboardUserWithoutStats(t *testing.T) {
	service, _, _ := setupTestService(50, 500, 200)

	board, err := service.GetLeaderboard(context.Background(), 99, 10)
	if err != nil {
		t.Fatalf("GetLeaderboard failed: %v", err)
	}

	if board.UserRank != 3 || board.TotalUsers != 3 {
		t.Errorf("Expected rank 3 of 3, got %d of %d", board.UserRank, board.TotalUsers)
	}
	if board.Percentile != 33 {
		t.Errorf("Expected floored percentile 33, got %d", board.Percentile)
	}
	if !board.IsInTopN {
		t.Error("Rank 3 is inside a top 50 cut")
	}
}

func TestGetLeaderboardStoreError(t *testing.T) {
	service, statsRepo, _ := setupTestService(50, 100)
	statsRepo.err = errors.New("db down")

	if _, err := service.GetLeaderboard(context.Background(), 1, 10); err == nil {
		t.Error("Expected error when the store fails")
	}
}

func TestGetLeaderboardToleratesMissingNames(t *testing.T) {
	service, _, profiles := setupTestService(50, 100, 50)
	profiles.DisplayNamesFunc = func(ctx context.Context, ids []uint) (map[uint]string, error) {
		return nil, errors.New("profile service down")
	}

	board, err := service.GetLeaderboard(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("GetLeaderboard failed: %v", err)
	}
	if len(board.Entries) != 2 {
		t.Errorf("Expected 2 entries, got %d", len(board.Entries))
	}
}

func TestGetUserRank(t *testing.T) {
	service, _, _ := setupTestService(50, 500, 900, 300)

	tests := []struct {
		userID uint
		want   int64
	}{
		{2, 1},
		{1, 2},
		{3, 3},
		{42, 4},
	}

	for _, tt := range tests {
		rank, err := service.GetUserRank(context.Background(), tt.userID)
		if err != nil {
			t.Fatalf("GetUserRank failed: %v", err)
		}
		if rank != tt.want {
			t.Errorf("User %d: expected rank %d, got %d", tt.userID, tt.want, rank)
		}
	}
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		name  string
		rank  int64
		total int64
		want  int
	}{
		{"top of one", 1, 1, 100},
		{"top of ten", 1, 10, 100},
		{"last of ten", 10, 10, 10},
		{"middle", 4, 5, 40},
		{"floored", 2, 3, 66},
		{"empty", 1, 0, 0},
		{"rank past total", 7, 5, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Percentile(tt.rank, tt.total); got != tt.want {
				t.Errorf("Percentile(%d, %d) = %d, want %d", tt.rank, tt.total, got, tt.want)
			}
		})
	}
}

func TestGetUserStats(t *testing.T) {
	service, _, _ := setupTestService(50, 150, 900)

	stats, err := service.GetUserStats(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetUserStats failed: %v", err)
	}

	if stats.Progress.Level != 2 {
		t.Errorf("Expected level 2 at 150 XP, got %d", stats.Progress.Level)
	}
	if stats.Rank != 2 {
		t.Errorf("Expected rank 2, got %d", stats.Rank)
	}
	if stats.AchievementCount != 3 {
		t.Errorf("Expected 3 achievements, got %d", stats.AchievementCount)
	}
	if stats.DisplayName != "user-a" {
		t.Errorf("Expected display name user-a, got %q", stats.DisplayName)
	}

	fresh, err := service.GetUserStats(context.Background(), 77)
	if err != nil {
		t.Fatalf("GetUserStats failed: %v", err)
	}
	if fresh.TotalXP != 0 || fresh.Progress.Level != 1 {
		t.Errorf("Expected zero state for new user, got %+v", fresh)
	}
}
