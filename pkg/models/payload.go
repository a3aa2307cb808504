package models

// Request body of the answer API. Every field is always serialized,
// including false booleans and the empty query id and session.
type AnswerQuery struct {
	Query                Query                `json:"query"`
	Session              string               `json:"session"`
	RelatedQuestionsSpec RelatedQuestionsSpec `json:"relatedQuestionsSpec"`
	AnswerGenerationSpec AnswerGenerationSpec `json:"answerGenerationSpec"`
}

type Query struct {
	Text    string `json:"text"`
	QueryID string `json:"queryId"`
}

type RelatedQuestionsSpec struct {
	Enable bool `json:"enable"`
}

type AnswerGenerationSpec struct {
	IgnoreAdversarialQuery      bool           `json:"ignoreAdversarialQuery"`
	IgnoreNonAnswerSeekingQuery bool           `json:"ignoreNonAnswerSeekingQuery"`
	IgnoreLowRelevantContent    bool           `json:"ignoreLowRelevantContent"`
	MultimodalSpec              MultimodalSpec `json:"multimodalSpec"`
	IncludeCitations            bool           `json:"includeCitations"`
	ModelSpec                   ModelSpec      `json:"modelSpec"`
}

type MultimodalSpec struct{}

type ModelSpec struct {
	ModelVersion string `json:"modelVersion"`
}

// Build the request body for a query. The text is embedded as is.
func NewAnswerQuery(text string) *AnswerQuery {
	return &AnswerQuery{
		Query:                Query{Text: text, QueryID: ""},
		Session:              "",
		RelatedQuestionsSpec: RelatedQuestionsSpec{Enable: true},
		AnswerGenerationSpec: AnswerGenerationSpec{
			IgnoreAdversarialQuery:      true,
			IgnoreNonAnswerSeekingQuery: false,
			IgnoreLowRelevantContent:    true,
			IncludeCitations:            true,
			ModelSpec:                   ModelSpec{ModelVersion: "stable"},
		},
	}
}
