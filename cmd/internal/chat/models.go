package chat

import "time"

type createConversationRequest struct {
	UserID  string      `json:"userId"`
	IsGroup bool        `json:"isGroup"`
	Name    string      `json:"name"`
	Members []memberRef `json:"members"`
}

type memberRef struct {
	Value string `json:"value"`
}

type appendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
	Image          string `json:"image"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type conversationResponse struct {
	ID            string         `json:"id"`
	Name          string         `json:"name,omitempty"`
	IsGroup       bool           `json:"isGroup"`
	UserIDs       []string       `json:"userIds"`
	LastMessageAt time.Time      `json:"lastMessageAt"`
	CreatedAt     time.Time      `json:"createdAt"`
	Users         []userResponse `json:"users,omitempty"`
}

type messageResponse struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId"`
	Body           string         `json:"body,omitempty"`
	Image          string         `json:"image,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	Sender         userResponse   `json:"sender"`
	Seen           []userResponse `json:"seen"`
}

// conversationUpdateResponse is the recency/read-state summary pushed to
// personal channels as conversation:update.
type conversationUpdateResponse struct {
	ID       string            `json:"id"`
	Messages []messageResponse `json:"messages"`
}

func toUserResponse(u User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.DisplayName,
		Email:     u.Email,
		Image:     u.AvatarURL,
		CreatedAt: u.CreatedAt,
	}
}

func usersByID(users []User) map[string]User {
	out := make(map[string]User, len(users))
	for _, u := range users {
		out[u.ID] = u
	}
	return out
}

func conversationPayload(c Conversation, users []User) conversationResponse {
	resp := conversationResponse{
		ID:            c.ID,
		Name:          c.Name,
		IsGroup:       c.IsGroup,
		UserIDs:       append([]string(nil), c.UserIDs...),
		LastMessageAt: c.LastMessageAt,
		CreatedAt:     c.CreatedAt,
	}
	for _, u := range users {
		resp.Users = append(resp.Users, toUserResponse(u))
	}
	return resp
}

func messagePayload(m Message, byID map[string]User) messageResponse {
	resp := messageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Body:           m.Body,
		Image:          m.ImageURL,
		CreatedAt:      m.CreatedAt,
		Sender:         toUserResponse(byID[m.SenderID]),
		Seen:           make([]userResponse, 0, len(m.SeenBy)),
	}
	if resp.Sender.ID == "" {
		resp.Sender.ID = m.SenderID
	}
	for _, uid := range m.SeenBy {
		u, ok := byID[uid]
		if !ok {
			u = User{ID: uid}
		}
		resp.Seen = append(resp.Seen, toUserResponse(u))
	}
	return resp
}

func conversationUpdatePayload(conversationID string, msgs []Message, byID map[string]User) conversationUpdateResponse {
	out := conversationUpdateResponse{
		ID:       conversationID,
		Messages: make([]messageResponse, 0, len(msgs)),
	}
	for _, m := range msgs {
		out.Messages = append(out.Messages, messagePayload(m, byID))
	}
	return out
}
