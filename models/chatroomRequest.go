package models

// ChatroomCreateRequest はルーム作成リクエストのボディを表します。
type ChatroomCreateRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

type ChatroomResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	CreatedBy uint   `json:"created_by"`
}

// MessageCreateRequest はルームへ送信するプロンプトです。空白のみの内容は拒否されます。
type MessageCreateRequest struct {
	Content string `json:"content" binding:"required"`
}

// GeminiResponse は生成された返信をそのまま返します。
type GeminiResponse struct {
	Response string `json:"response"`
}

func NewChatroomResponse(room Chatroom) ChatroomResponse {
	return ChatroomResponse{ID: room.ID, Name: room.Name, CreatedBy: room.CreatedBy}
}
