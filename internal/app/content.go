package app

import (
	"context"
	"sort"

	"golang.org/x/text/language"
	"quiz-attempt-service/internal/domain"
)

// AttemptContent is everything a resumable quiz-taking UI needs for one attempt.
type AttemptContent struct {
	Attempt   domain.Attempt    `json:"attempt"`
	Questions []ContentQuestion `json:"questions"`
	Answers   []ContentAnswer   `json:"answers"`
	MaxScore  float64           `json:"maxScore"`
}

// ContentQuestion is a sealed question rendered for one locale. It never carries the answer key.
type ContentQuestion struct {
	QuestionID string              `json:"questionId"`
	Type       domain.QuestionType `json:"type"`
	Prompt     string              `json:"prompt"`
	Points     float64             `json:"points"`
	OrderIndex int                 `json:"orderIndex"`
	Options    []ContentOption     `json:"options"`
}

// ContentOption is one option in sealed order.
type ContentOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ContentAnswer is the stored selection; correctness is only revealed once graded.
type ContentAnswer struct {
	QuestionID        string   `json:"questionId"`
	SelectedOptionIDs []string `json:"selectedOptionIds"`
	IsCorrect         *bool    `json:"isCorrect,omitempty"`
	Score             *float64 `json:"score,omitempty"`
}

// GetAttemptContent returns the sealed questions of an attempt in sealed order with the
// current answers. locale accepts a tag or an Accept-Language list.
func (s *AttemptService) GetAttemptContent(ctx context.Context, viewer domain.Viewer, attemptID, locale string) (AttemptContent, error) {
	attempt, err := s.viewableAttempt(ctx, viewer, attemptID)
	if err != nil {
		return AttemptContent{}, err
	}
	sealed, err := s.attempts.SealedQuestions(ctx, attemptID)
	if err != nil {
		return AttemptContent{}, err
	}
	ids := make([]string, 0, len(sealed))
	for _, aq := range sealed {
		ids = append(ids, aq.QuestionID)
	}
	questions, err := s.loadQuestions(ctx, ids)
	if err != nil {
		return AttemptContent{}, err
	}
	answers, err := s.attempts.Answers(ctx, attemptID)
	if err != nil {
		return AttemptContent{}, err
	}

	desired, _, _ := language.ParseAcceptLanguage(locale)

	content := AttemptContent{
		Attempt:   attempt,
		Questions: make([]ContentQuestion, 0, len(sealed)),
		Answers:   make([]ContentAnswer, 0, len(answers)),
	}
	for _, aq := range sealed {
		question := questions[aq.QuestionID]
		texts := make(map[string]map[string]string, len(question.Options))
		for _, opt := range question.Options {
			texts[opt.ID] = opt.Text
		}

		cq := ContentQuestion{
			QuestionID: aq.QuestionID,
			Type:       question.Type,
			Prompt:     pickTranslation(question.Prompt, desired),
			Points:     aq.Points,
			OrderIndex: aq.OrderIndex,
			Options:    make([]ContentOption, 0, len(aq.OptionOrder)),
		}
		for _, optID := range aq.OptionOrder {
			cq.Options = append(cq.Options, ContentOption{ID: optID, Text: pickTranslation(texts[optID], desired)})
		}
		content.Questions = append(content.Questions, cq)
		content.MaxScore += aq.Points
	}

	graded := attempt.Status == domain.AttemptGraded
	for _, a := range answers {
		ca := ContentAnswer{QuestionID: a.QuestionID, SelectedOptionIDs: a.SelectedIDs}
		if graded {
			isCorrect, score := a.IsCorrect, a.Score
			ca.IsCorrect, ca.Score = &isCorrect, &score
		}
		content.Answers = append(content.Answers, ca)
	}
	return content, nil
}

// viewableAttempt allows the owning student, teachers and admins.
func (s *AttemptService) viewableAttempt(ctx context.Context, viewer domain.Viewer, attemptID string) (domain.Attempt, error) {
	if viewer.HasRole(domain.RoleTeacher, domain.RoleAdmin) {
		return s.attempts.GetAttempt(ctx, attemptID)
	}
	return s.ownedAttempt(ctx, viewer, attemptID)
}

// pickTranslation chooses the best translation for the desired tags. English wins
// when nothing matches, then the lexically first locale.
func pickTranslation(texts map[string]string, desired []language.Tag) string {
	if len(texts) == 0 {
		return ""
	}
	keys := make([]string, 0, len(texts))
	for k := range texts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if (keys[i] == "en") != (keys[j] == "en") {
			return keys[i] == "en"
		}
		return keys[i] < keys[j]
	})

	tags := make([]language.Tag, 0, len(keys))
	supported := make([]string, 0, len(keys))
	for _, k := range keys {
		tag, err := language.Parse(k)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		supported = append(supported, k)
	}
	if len(tags) == 0 {
		return texts[keys[0]]
	}
	_, idx, _ := language.NewMatcher(tags).Match(desired...)
	return texts[supported[idx]]
}
