package planner

import (
	"fmt"
	"math"
	"strings"

	"github.com/bobarin/directorscut/internal/models"
)

func buildSystemInstruction(p *models.Project, count, clipLength int) string {
	var b strings.Builder

	b.WriteString("You are a professional Music Video Director creating content for AI video generation.\n")
	fmt.Fprintf(&b, "TASK: Create a visual storyboard for a song that is %d seconds long.\n", int(math.Round(p.AudioDuration)))
	fmt.Fprintf(&b, "The video MUST be broken down into exactly %d sequential scenes, each approx %d seconds.\n\n", count, clipLength)

	b.WriteString("INPUT CONTEXT:\n")
	fmt.Fprintf(&b, "Lyrics/Vibe: %q\n", p.Lyrics)
	fmt.Fprintf(&b, "Aspect Ratio: %s\n\n", models.NormalizeAspectRatio(p.AspectRatio))

	b.WriteString(`CRITICAL SAFETY REQUIREMENTS (the video model rejects prompts with any of these):
- NO money, cash, bills, counting money, or wealth displays
   -> BUT luxury items (cars, jewelry, fashion) are OK
- NO drugs, smoking, haze (use "atmospheric fog" or "stage lighting" instead)
   -> Stage fog, LED haze, backlight mist are acceptable
- NO weapons, violence, or aggressive imagery
- NO explicit/suggestive content
- NO alcohol or substance references
- "Rapper" and "hip-hop artist" are acceptable genre terms
- Use "success" metaphors like achievements, stages, spotlights instead of material wealth

ENCOURAGED ELEMENTS:
- Urban architecture, graffiti murals, street art
- Fashion: designer clothes, jewelry (chains, watches), sneakers
- Performance: stages, crowds, microphones, studio booths
- Cinematography: low angles, "shot on 35mm", "anamorphic lens", dramatic lighting, slow motion
- Vehicles: luxury cars as backdrop (not for racing/stunts)

INSTRUCTIONS:
1. Analyze the flow (Intro, Verse, Chorus) based on input.
2. Write a safe, artistic "visualPrompt" for EACH scene.
3. STYLE: Focus on cinematic camera work, lighting, color grading, urban architecture, and artistic metaphors.
4. CONSISTENCY: Maintain character/color consistency throughout.

OUTPUT SCHEMA:
Return JSON: { "scenes": [ { "id", "startTime", "endTime", "description", "visualPrompt" } ] }
`)
	return b.String()
}
