package dto

type SendMessageRequest struct {
	RecipientID   *string `json:"recipient_id" binding:"omitempty,uuid"`
	Content       string  `json:"content" binding:"required,max=3000"`
	CorrelationID string  `json:"correlation_id" binding:"required,uuid"`
}

type ConversationFilter struct {
	Page  int `form:"page,default=1" binding:"min=1"`
	Limit int `form:"limit,default=50" binding:"min=1,max=200"`
}
