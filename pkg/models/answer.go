package models

import (
	"encoding/json"
	"fmt"
)

// Human readable view of an answer API response
type Answer struct {
	State            string   `json:"state,omitempty"`
	AnswerText       string   `json:"answer_text"`
	RelatedQuestions []string `json:"related_questions,omitempty"`
	Sources          []Source `json:"sources,omitempty"`
}

type Source struct {
	Title string `json:"title,omitempty"`
	URI   string `json:"uri,omitempty"`
}

type documentMetadata struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

type answerBody struct {
	Answer struct {
		State            string   `json:"state"`
		AnswerText       string   `json:"answerText"`
		RelatedQuestions []string `json:"relatedQuestions"`
		References       []struct {
			ChunkInfo *struct {
				DocumentMetadata documentMetadata `json:"documentMetadata"`
			} `json:"chunkInfo"`
			UnstructuredDocumentInfo *documentMetadata `json:"unstructuredDocumentInfo"`
		} `json:"references"`
	} `json:"answer"`
	RelatedQuestions []string `json:"relatedQuestions"`
}

// Extract the answer text, related questions and cited sources from a raw
// answer API response. Sources are deduplicated by URI, keeping the first title.
func ParseAnswer(raw []byte) (*Answer, error) {
	var body answerBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("failed to decode answer: %w", err)
	}

	answer := &Answer{
		State:            body.Answer.State,
		AnswerText:       body.Answer.AnswerText,
		RelatedQuestions: body.Answer.RelatedQuestions,
	}
	if len(answer.RelatedQuestions) == 0 {
		answer.RelatedQuestions = body.RelatedQuestions
	}

	seen := map[string]bool{}
	for _, ref := range body.Answer.References {
		var meta *documentMetadata
		switch {
		case ref.ChunkInfo != nil:
			meta = &ref.ChunkInfo.DocumentMetadata
		case ref.UnstructuredDocumentInfo != nil:
			meta = ref.UnstructuredDocumentInfo
		default:
			continue
		}
		key := meta.URI
		if key == "" {
			key = meta.Title
		}
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		answer.Sources = append(answer.Sources, Source{Title: meta.Title, URI: meta.URI})
	}

	return answer, nil
}
