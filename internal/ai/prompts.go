package ai

import (
	"fmt"

	"github.com/linkedin-autopost/internal/models"
)

// Post generation prompts
const (
	PostSystemPrompt = `You are a professional but Gen Z-friendly tech writer creating a LinkedIn post.`

	PostUserPrompt = `Topic: %s

Write %s with this structure:
1) First line: a friendly greeting, e.g. 'Hey tech fam 👋' or similar.
2) Then 3–5 bullet points. Each bullet:
   - Starts with an emoji (like 🔹, 🚀, 🤖, ⚙️, 💡 etc.)
   - Has 1–3 short lines, not a huge paragraph.
   - Is factual, neutral and easy to skim.
3) If the mode is meme, include a separate line starting with 'Caption:' that is a fun but respectful meme-style caption.
4) End with 3–6 relevant hashtags on one line. Example: #Tech #AI #Cloud

Rules:
- Do NOT directly attack or insult any person or company.
- No slang that feels offensive or cringe.
- Keep it understandable for a broad audience.
`

	// FallbackPostTemplate is used when no provider returns text
	FallbackPostTemplate = "Hey tech fam 👋\n\n🔹 Quick update on: %s\n\nCaption: Quick tech update.\n\n#Tech #News"
)

// ImagePromptTemplate is the prompt for the remote image model
const ImagePromptTemplate = `Professional, minimal, high-contrast tech artwork about:
"%s"

Requirements:
- 1:1 square aspect ratio
- Clean, modern illustration
- No logos of real companies
- No real faces
- Should look good as a LinkedIn post visual
`

// Prompt is a system/user prompt pair
type Prompt struct {
	System string
	User   string
}

// postTypeDescription describes what to write for a mode
func postTypeDescription(mode models.ContentMode) string {
	switch mode {
	case models.ModeArticle:
		return "a short LinkedIn explainer post"
	case models.ModeMeme:
		return "a LinkedIn post that explains the topic briefly, then gives a fun meme-style caption on a separate line starting with 'Caption:'"
	case models.ModeShort:
		return "a concise LinkedIn update"
	default:
		return "a LinkedIn post mixing information and a light Gen Z tone"
	}
}

// PostPrompt builds the generation prompt for a topic and mode
func PostPrompt(title string, mode models.ContentMode) Prompt {
	return Prompt{
		System: PostSystemPrompt,
		User:   fmt.Sprintf(PostUserPrompt, title, postTypeDescription(mode)),
	}
}

// FallbackPost is the deterministic text used when generation fails
func FallbackPost(title string) string {
	return fmt.Sprintf(FallbackPostTemplate, title)
}

// ImagePrompt builds the prompt for the image model
func ImagePrompt(title string) string {
	return fmt.Sprintf(ImagePromptTemplate, title)
}
