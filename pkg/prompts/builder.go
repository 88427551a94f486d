package prompts

import (
	"fmt"

	"github.com/shouni/manga-stylizer/pkg/domain"
)

const panelTemplate = `Colorize this black-and-white manga panel in a %[1]s, %[2]s style.
Color the entire panel exhaustively: every single pixel must be colored and no area may be left uncolored, grey or white.
Preserve all original line art, details, textures and composition exactly as drawn.
Apply dynamic shading, lighting and highlights appropriate for a %[2]s story, and add the scene's genre-appropriate effects (motion lines, energy glows, atmospheric haze, magic effects and similar) where the scene calls for them.
The output must be a complete, high-resolution, fully colored manga panel in the %[1]s style.`

const photoTemplate = `Act as an expert manga artist and convert this photo into a manga panel.
Key requirements:
1. Preserve content: the subject's identity, face, pose and the background must match the original photo exactly.
2. Apply manga style: redraw the photo with manga line art, manga-style shading and screen-tone textures.
3. Style and genre: the style must be %[1]s and the genre %[2]s. Adapt line weight, textures, effects and panel elements (borders, speed lines, motion lines) to this selection.
4. Strict prohibition: do NOT produce photorealistic output, realistic colors or photographic effects.
5. Quality: the output must be complete, high-resolution and faithful to the original photo's composition.`

// BuildPrompt はアップロード種別に応じたテンプレートへ画風とジャンルを埋め込みます。
// 入力は閉じたカタログなので失敗しません。
func BuildPrompt(kind domain.UploadKind, style domain.Style, genre domain.Genre) string {
	if kind == domain.UploadKindPhoto {
		return fmt.Sprintf(photoTemplate, style, genre)
	}
	return fmt.Sprintf(panelTemplate, style, genre)
}
