package agent

import "github.com/cloudwego/eino/schema"

// Catalog returns the tool definitions exposed to the model. Every tool is
// executed remotely by a connected executor client; the server only
// correlates requests with responses.
func Catalog() []*schema.ToolInfo {
	stringList := &schema.ParameterInfo{Type: schema.String}

	return []*schema.ToolInfo{
		{
			Name: "strudel_get_clip",
			Desc: "Get the Strudel code and metadata for a clip.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"clip_id": {Type: schema.String, Desc: "Unique identifier for the clip", Required: true},
			}),
		},
		{
			Name: "strudel_update_clip",
			Desc: "Replace the Strudel code of an existing clip.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"clip_id":  {Type: schema.String, Desc: "Unique identifier for the clip", Required: true},
				"new_code": {Type: schema.String, Desc: "New Strudel code for the clip", Required: true},
			}),
		},
		{
			Name: "strudel_create_clip",
			Desc: "Create a new Strudel clip.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"clip_id": {Type: schema.String, Desc: "Unique identifier for the new clip", Required: true},
				"name":    {Type: schema.String, Desc: "Display name for the clip", Required: true},
				"code":    {Type: schema.String, Desc: "Strudel code for the clip", Required: true},
			}),
		},
		{
			Name: "strudel_list_clips",
			Desc: "List all clips in the current project.",
		},
		{
			Name: "strudel_delete_clip",
			Desc: "Delete a clip from the current project.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"clip_id": {Type: schema.String, Desc: "Unique identifier for the clip to delete", Required: true},
			}),
		},
		{
			Name: "strudel_get_song",
			Desc: "Get a song's clip composition.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"song_id": {Type: schema.String, Desc: "Unique identifier for the song", Required: true},
			}),
		},
		{
			Name: "strudel_update_song",
			Desc: "Replace the ordered list of clips in a song.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"song_id":  {Type: schema.String, Desc: "Unique identifier for the song", Required: true},
				"clip_ids": {Type: schema.Array, ElemInfo: stringList, Desc: "New ordered list of clip IDs", Required: true},
			}),
		},
		{
			Name: "strudel_create_song",
			Desc: "Create a new song.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"song_id":  {Type: schema.String, Desc: "Unique identifier for the new song", Required: true},
				"name":     {Type: schema.String, Desc: "Display name for the song", Required: true},
				"clip_ids": {Type: schema.Array, ElemInfo: stringList, Desc: "Initial ordered list of clip IDs"},
			}),
		},
		{
			Name: "strudel_get_playlist",
			Desc: "Get a playlist's song composition.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"playlist_id": {Type: schema.String, Desc: "Unique identifier for the playlist", Required: true},
			}),
		},
		{
			Name: "strudel_update_playlist",
			Desc: "Replace the ordered list of songs in a playlist.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"playlist_id": {Type: schema.String, Desc: "Unique identifier for the playlist", Required: true},
				"song_ids":    {Type: schema.Array, ElemInfo: stringList, Desc: "New ordered list of song IDs", Required: true},
			}),
		},
		{
			Name: "strudel_request_user_input",
			Desc: "Ask the user a question and wait for their answer.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"prompt":          {Type: schema.String, Desc: "Prompt message to display to the user", Required: true},
				"input_type":      {Type: schema.String, Desc: "Input type: text, textarea or select"},
				"timeout_seconds": {Type: schema.Integer, Desc: "Seconds to wait for a response"},
			}),
		},
		{
			Name: "strudel_send_notification",
			Desc: "Show a transient notification to the user.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"message":           {Type: schema.String, Desc: "Notification message", Required: true},
				"notification_type": {Type: schema.String, Desc: "Type: info, warning, error or success"},
				"duration":          {Type: schema.Integer, Desc: "Display duration in milliseconds"},
			}),
		},
	}
}
