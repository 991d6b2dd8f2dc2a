package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprachlupe/internal/models"
	"sprachlupe/internal/storage"
)

func startedLesson(t *testing.T, env *testEnv, goal int) *LessonProgress {
	t.Helper()
	ctx := context.Background()
	_, err := env.ctrl.SavePreferences(ctx, models.LevelB1, goal)
	require.NoError(t, err)
	p, err := env.ctrl.StartLesson(ctx)
	require.NoError(t, err)
	return p
}

func TestDailyLessonStateMachine(t *testing.T) {
	env := newTestEnv(t, seedHistory(t, 12))
	ctx := context.Background()

	assert.Equal(t, DailyNoPreferences, env.ctrl.Lesson().State)
	_, err := env.ctrl.StartLesson(ctx)
	assert.ErrorIs(t, err, ErrNoPreferences)

	p := startedLesson(t, env, 3)
	assert.Equal(t, DailyInSession, p.State)
	require.Len(t, p.Items, 3)
	assert.Equal(t, 0, p.Index)
	assert.Equal(t, models.LessonVocabulary, p.Current.Type)

	require.Len(t, env.gateway.lessonCalls, 1)
	call := env.gateway.lessonCalls[0]
	assert.Equal(t, models.LevelB1, call.Level)
	assert.Equal(t, 3, call.Count)
	assert.Equal(t, "English", call.Lang)
	require.Len(t, call.Topics, MaxLessonTopics)
	assert.Equal(t, "worta", call.Topics[0])

	p, err = env.ctrl.NextItem(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Index)
	p, err = env.ctrl.NextItem(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Index)

	p, err = env.ctrl.NextItem(ctx)
	require.NoError(t, err)
	assert.Equal(t, DailySummary, p.State)
	assert.Nil(t, p.Current)

	_, err = env.ctrl.NextItem(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, env.ctrl.AcknowledgeSummary())
	p = env.ctrl.Lesson()
	assert.Equal(t, DailyDashboard, p.State)
	assert.Empty(t, p.Items)
	assert.ErrorIs(t, env.ctrl.AcknowledgeSummary(), ErrInvalidState)
}

func TestDailyLessonRequestsExactCount(t *testing.T) {
	env := newTestEnv(t, nil)
	p := startedLesson(t, env, 5)

	require.Len(t, p.Items, 5)
	for _, it := range p.Items {
		assert.NotEmpty(t, it.ID)
		assert.Contains(t, []models.LessonItemType{models.LessonSentence, models.LessonVocabulary}, it.Type)
		assert.NoError(t, it.Validate())
	}
}

func TestQuizSelectionIsWriteOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	startedLesson(t, env, 3)

	p, err := env.ctrl.SelectOption(1)
	require.NoError(t, err)
	require.NotNil(t, p.Selected)
	assert.Equal(t, 1, *p.Selected)
	assert.Equal(t, 1, p.Correct)

	p, err = env.ctrl.SelectOption(0)
	require.NoError(t, err)
	assert.Equal(t, 1, *p.Selected)
	assert.Equal(t, 1, p.Answered)
	assert.Equal(t, 1, p.Correct)

	_, err = env.ctrl.SelectOption(7)
	assert.ErrorIs(t, err, ErrInvalidInput)

	p, err = env.ctrl.NextItem(ctx)
	require.NoError(t, err)
	assert.Nil(t, p.Selected)

	// Satz-Einträge haben keine Auswahl
	_, err = env.ctrl.SelectOption(0)
	assert.ErrorIs(t, err, ErrInvalidState)

	p, err = env.ctrl.NextItem(ctx)
	require.NoError(t, err)
	assert.Nil(t, p.Selected)
	p, err = env.ctrl.SelectOption(0)
	require.NoError(t, err)
	assert.Equal(t, 0, *p.Selected)
	assert.Equal(t, 2, p.Answered)
	assert.Equal(t, 1, p.Correct)
}

func TestLessonCompletionUpdatesStreak(t *testing.T) {
	env := newTestEnv(t, func(ctx context.Context, s *storage.Store) {
		_ = s.SavePreferences(ctx, models.UserPreferences{Level: models.LevelA2, DailyGoal: 1, LastStudyDate: "2026-10-18", Streak: 4})
	})
	ctx := context.Background()
	assert.Equal(t, DailyDashboard, env.ctrl.Lesson().State)

	_, err := env.ctrl.StartLesson(ctx)
	require.NoError(t, err)
	_, err = env.ctrl.NextItem(ctx)
	require.NoError(t, err)

	prefs := env.ctrl.Preferences()
	assert.Equal(t, 5, prefs.Streak)
	assert.Equal(t, "2026-10-19", prefs.LastStudyDate)
	assert.Equal(t, prefs, env.store.LoadPreferences(ctx))

	require.NoError(t, env.ctrl.AcknowledgeSummary())
	_, err = env.ctrl.StartLesson(ctx)
	require.NoError(t, err)
	_, err = env.ctrl.NextItem(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, env.ctrl.Preferences().Streak)
}

func TestPreferencesEditing(t *testing.T) {
	env := newTestEnv(t, func(ctx context.Context, s *storage.Store) {
		_ = s.SavePreferences(ctx, models.UserPreferences{Level: models.LevelC1, DailyGoal: 4, LastStudyDate: "2026-10-10", Streak: 2})
	})
	ctx := context.Background()

	_, err := env.ctrl.SavePreferences(ctx, models.LevelA1, 3)
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, env.ctrl.EditPreferences())
	assert.Equal(t, DailyNoPreferences, env.ctrl.Lesson().State)

	_, err = env.ctrl.SavePreferences(ctx, "Z9", 3)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.ctrl.SavePreferences(ctx, models.LevelA1, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	prefs, err := env.ctrl.SavePreferences(ctx, models.LevelA1, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, prefs.Streak)
	assert.Equal(t, "2026-10-10", prefs.LastStudyDate)
	assert.Equal(t, DailyDashboard, env.ctrl.Lesson().State)

	_, err = env.ctrl.StartLesson(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, env.ctrl.EditPreferences(), ErrInvalidState)
}

func TestLessonFailureStaysOnDashboard(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.gateway.lessonFn = func(int) ([]models.DailyLessonItem, error) {
		return nil, errors.New("kaputt")
	}
	_, err := env.ctrl.SavePreferences(ctx, models.LevelB2, 5)
	require.NoError(t, err)

	_, err = env.ctrl.StartLesson(ctx)
	assert.ErrorIs(t, err, ErrLessonFailed)
	assert.Equal(t, DailyDashboard, env.ctrl.Lesson().State)
	assert.False(t, env.ctrl.Busy(FlowLesson))
}

func TestSaveLessonItem(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	require.NoError(t, env.ctrl.SetExplanationLanguage(ctx, "German"))
	startedLesson(t, env, 2)

	item, err := env.ctrl.SaveLessonItem(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Das ist ein Satz.", item.Data.OriginalText)

	calls := env.gateway.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "German", calls[0].Target)

	_, err = env.ctrl.SaveLessonItem(ctx, 1)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = env.ctrl.SaveLessonItem(ctx, 9)
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Len(t, env.ctrl.History(), 1)
	assert.Equal(t, "German", env.store.LoadExplanationLanguage(ctx))
}

func TestSetExplanationLanguageRejectsEmpty(t *testing.T) {
	env := newTestEnv(t, nil)
	assert.ErrorIs(t, env.ctrl.SetExplanationLanguage(context.Background(), " "), ErrInvalidInput)
	assert.Equal(t, "English", env.ctrl.ExplanationLanguage())
}
