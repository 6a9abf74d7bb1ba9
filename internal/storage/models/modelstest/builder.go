// Package modelstest builds survey datasets for tests.
package modelstest

import (
	"fmt"
	"time"

	"github.com/survey-analytics/engine/internal/storage/models"
)

func IntPtr(v int) *int {
	return &v
}

type Builder struct {
	ds  models.Dataset
	seq int
	now time.Time
}

func NewBuilder(surveyType string) *Builder {
	return &Builder{
		ds:  models.Dataset{SurveyType: surveyType},
		now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (b *Builder) Question(id string, t models.QuestionType, text string) *Builder {
	b.ds.Questions = append(b.ds.Questions, models.Question{
		ID:         id,
		Text:       text,
		Type:       t,
		SurveyType: b.ds.SurveyType,
		OrderIndex: len(b.ds.Questions),
	})
	return b
}

// Respondent adds r and returns its id. Missing ids and types are filled in.
func (b *Builder) Respondent(r models.Respondent) string {
	b.seq++
	if r.ID == "" {
		r.ID = fmt.Sprintf("r%03d", b.seq)
	}
	if r.RespondentType == "" {
		r.RespondentType = models.RespondentCitizen
	}
	r.CreatedAt = b.now
	r.UpdatedAt = b.now
	b.ds.Respondents = append(b.ds.Respondents, r)
	return r.ID
}

func (b *Builder) Text(respondentID, questionID, text string) *Builder {
	return b.add(models.Response{RespondentID: respondentID, QuestionID: questionID, AnswerText: text})
}

func (b *Builder) Choices(respondentID, questionID string, choices ...string) *Builder {
	return b.add(models.Response{RespondentID: respondentID, QuestionID: questionID, AnswerChoices: choices})
}

func (b *Builder) Rating(respondentID, questionID string, rating int) *Builder {
	return b.add(models.Response{RespondentID: respondentID, QuestionID: questionID, AnswerRating: IntPtr(rating)})
}

func (b *Builder) add(resp models.Response) *Builder {
	resp.ID = fmt.Sprintf("resp%04d", len(b.ds.Responses)+1)
	resp.CreatedAt = b.now
	b.ds.Responses = append(b.ds.Responses, resp)
	return b
}

func (b *Builder) Dataset() *models.Dataset {
	ds := b.ds
	return &ds
}
