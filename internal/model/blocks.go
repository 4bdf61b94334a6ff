package model

var (
	thinkingTypes = set("thinking", "thoughts", "reasoning_recap")
	toolTypes     = set("tool_use", "tool_result", "execution_output", "tether_browsing_display")
	attachTypes   = set(
		"image_asset_pointer",
		"audio_asset_pointer",
		"real_time_user_audio_video_asset_pointer",
		"attachment",
		"file",
		"inline_image",
		"inline_audio",
		"drive_document",
		"drive_video",
	)
	groundingTypes = set("grounding")
	systemTypes    = set("system_error")
)

func set(keys ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

func IsThinking(blockType string) bool   { _, ok := thinkingTypes[blockType]; return ok }
func IsTool(blockType string) bool       { _, ok := toolTypes[blockType]; return ok }
func IsAttachment(blockType string) bool { _, ok := attachTypes[blockType]; return ok }
func IsGrounding(blockType string) bool  { _, ok := groundingTypes[blockType]; return ok }
func IsSystem(blockType string) bool     { _, ok := systemTypes[blockType]; return ok }

// Visibility selects which messages and blocks count as visible.
type Visibility struct {
	IncludeSystem      bool
	IncludeTool        bool
	IncludeThinking    bool
	IncludeAttachments bool
}

var ShowAll = Visibility{
	IncludeSystem:      true,
	IncludeTool:        true,
	IncludeThinking:    true,
	IncludeAttachments: true,
}
