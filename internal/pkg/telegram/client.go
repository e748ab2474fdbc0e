package telegram

import (
	"encoding/json"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ChatClient is the chat-platform surface the lifecycle core depends on.
// Every call may fail; callers in background loops must catch per call.
type ChatClient interface {
	SendMessage(userID int64, text string) error
	SendMessageWithMarkup(userID int64, text string, markup interface{}) error
	CreateInviteLink(channelID int64, memberLimit int, expireAt time.Time) (string, error)
	BanMember(channelID, userID int64) error
	UnbanMember(channelID, userID int64) error
	GetChatMemberStatus(channelID, userID int64) (string, error)
}

// BotClient implements ChatClient on top of the Telegram Bot API.
type BotClient struct {
	api *tgbotapi.BotAPI
}

// NewBotClient wraps an authorized Bot API handle.
func NewBotClient(api *tgbotapi.BotAPI) *BotClient {
	return &BotClient{api: api}
}

// API exposes the underlying handle for the update loop.
func (c *BotClient) API() *tgbotapi.BotAPI {
	return c.api
}

func (c *BotClient) SendMessage(userID int64, text string) error {
	return c.SendMessageWithMarkup(userID, text, nil)
}

func (c *BotClient) SendMessageWithMarkup(userID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(userID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("send message to %d: %w", userID, err)
	}
	return nil
}

// CreateInviteLink issues a fresh single-use invite link for the channel.
func (c *BotClient) CreateInviteLink(channelID int64, memberLimit int, expireAt time.Time) (string, error) {
	cfg := tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:  tgbotapi.ChatConfig{ChatID: channelID},
		MemberLimit: memberLimit,
		ExpireDate:  int(expireAt.Unix()),
	}
	resp, err := c.api.Request(cfg)
	if err != nil {
		return "", fmt.Errorf("create invite link: %w", err)
	}

	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", fmt.Errorf("decode invite link response: %w", err)
	}
	return link.InviteLink, nil
}

func (c *BotClient) BanMember(channelID, userID int64) error {
	cfg := tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: channelID,
			UserID: userID,
		},
	}
	if _, err := c.api.Request(cfg); err != nil {
		return fmt.Errorf("ban member %d: %w", userID, err)
	}
	return nil
}

func (c *BotClient) UnbanMember(channelID, userID int64) error {
	cfg := tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: channelID,
			UserID: userID,
		},
		OnlyIfBanned: true,
	}
	if _, err := c.api.Request(cfg); err != nil {
		return fmt.Errorf("unban member %d: %w", userID, err)
	}
	return nil
}

func (c *BotClient) GetChatMemberStatus(channelID, userID int64) (string, error) {
	member, err := c.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: channelID,
			UserID: userID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("get chat member %d: %w", userID, err)
	}
	return member.Status, nil
}
