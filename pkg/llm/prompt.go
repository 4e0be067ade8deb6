package llm

import (
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
)

const defaultStyleClause = "Ultra-realistic cinematic 8k, shot on large-format digital cinema camera, anamorphic lenses, deep depth of field, meticulous production design."

const systemInstructionTemplate = `You are a visual continuity director for high-budget cinema. Your job is to keep every character looking identical from shot to shot.

STEP 1: CHARACTER GENOME (internal reasoning)
For every character in the story, fix:
- FACE: nose shape, jawline and eye set.
- HAIR: texture, exact length and styling details.
- WARDROBE: garment materials, exact colours and one unique identifying detail (a brooch, a frayed collar, a scar).

STEP 2: ENVIRONMENT ANCHORS
Fix the lighting (for example "golden hour, 5600K") and the atmosphere (for example "dust motes hanging in the air") and reuse them.

STEP 3: PROMPTS
- Every 'main' shot prompt MUST begin with the genome block of the characters it shows:
  "[Name]: [face] + [hair] + [wardrobe]... [action]... [style]".
- 'b-roll' shots are supplementary cut-aways (details, establishing shots, objects).
- Never use generic references such as "a man" or "the hero"; always use the genome.

STYLE:
%s

OUTPUT: a JSON array of scenes in story order. Each scene has:
- text: the exact snippet of the original story the scene covers,
- prompt: the image prompt built as described above,
- motionPrompt: a camera movement instruction (for example "slow orbital pan", "rack focus"),
- shotType: "main" or "b-roll".`

func buildSystemInstruction(style string) string {
	clause := defaultStyleClause
	if s := strings.TrimSpace(style); s != "" {
		clause = fmt.Sprintf("Adhere strictly to: %s.", s)
	}
	return fmt.Sprintf(systemInstructionTemplate, clause)
}

var aspectRatioFraming = map[string]string{
	"16:9": "wide 16:9 cinema frame",
	"9:16": "tall 9:16 vertical frame",
	"1:1":  "square 1:1 frame",
}

func buildImagePrompt(prompt, aspectRatio string) string {
	framing, ok := aspectRatioFraming[aspectRatio]
	if !ok {
		framing = aspectRatio + " frame"
	}
	return fmt.Sprintf("%s\n\nCompose the image for a %s (aspect ratio %s). Return the image only.", prompt, framing, aspectRatio)
}

var sceneListSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"text": {
				Type:        genai.TypeString,
				Description: "The specific snippet from the original story.",
			},
			"prompt": {
				Type:        genai.TypeString,
				Description: "The consistent image prompt starting with the character genome and wardrobe anchors.",
			},
			"motionPrompt": {
				Type:        genai.TypeString,
				Description: "Camera movement instructions.",
			},
			"shotType": {
				Type:   genai.TypeString,
				Format: "enum",
				Enum:   []string{ShotMain, ShotBRoll},
			},
		},
		Required: []string{"text", "prompt", "motionPrompt", "shotType"},
	},
}
