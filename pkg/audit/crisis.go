package audit

import (
	"strings"

	"github.com/creativcreature/euongelion-sub003/pkg/domain"
)

var crisisKeywords = []string{
	"suicide",
	"suicidal",
	"kill myself",
	"end my life",
	"don't want to live",
	"don't want to be here",
	"want to die",
	"better off dead",
	"no reason to live",
	"self harm",
	"self-harm",
	"cutting myself",
	"hurt myself",
	"abuse",
	"hits me",
	"beats me",
	"domestic violence",
}

var crisisResources = []domain.CrisisResource{
	{Name: "988 Suicide & Crisis Lifeline", Contact: "Call or Text 988"},
	{Name: "Crisis Text Line", Contact: "Text HOME to 741741"},
}

const crisisAckPrompt = "Before continuing, please acknowledge these crisis resources."

// DetectCrisis reports whether the submission contains crisis language.
func DetectCrisis(text string) bool {
	lower := strings.ToLower(text)
	for _, keyword := range crisisKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// CrisisRequirement builds the acknowledgment requirement for a submission.
func CrisisRequirement(crisisDetected bool) domain.CrisisRequirement {
	req := domain.CrisisRequirement{Required: crisisDetected}
	if crisisDetected {
		req.Resources = crisisResources
		req.Prompt = crisisAckPrompt
	}
	return req
}
