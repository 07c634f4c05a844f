package telegram

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/channels/typing"
)

const (
	telegramMaxMessageLen = 4096
	telegramCaptionMaxLen = 1024
)

// Send delivers an outbound message to a Telegram chat, editing the
// "Thinking..." placeholder in place when one is pending for this chat/topic
// and falling back to new chunked messages otherwise.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram bot not running")
	}

	localKey := msg.ChatID
	if lk := msg.Metadata["local_key"]; lk != "" {
		localKey = lk
	}

	chatID, err := parseRawChatID(localKey)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}

	threadID := 0
	if tid, ok := c.threadIDs.Load(localKey); ok {
		threadID = tid.(int)
	}
	replyToMsgID := 0
	if v := msg.Metadata["message_id"]; v != "" && msg.Metadata["is_group"] == "true" {
		fmt.Sscanf(v, "%d", &replyToMsgID)
	}

	// Placeholder update (e.g. LLM retry notification): edit in place, keep
	// the placeholder alive for the final response.
	if msg.Metadata["placeholder_update"] == "true" {
		if pID, ok := c.placeholders.Load(localKey); ok {
			_ = c.editMessage(ctx, chatID, pID.(int), msg.Content)
		}
		return nil
	}

	if stop, ok := c.stopThinking.LoadAndDelete(localKey); ok {
		if cf, ok := stop.(*thinkingCancel); ok {
			cf.Cancel()
		}
	}
	if ctrl, ok := c.typingCtrls.LoadAndDelete(localKey); ok {
		ctrl.(*typing.Controller).Stop()
	}

	// NO_REPLY cleanup: the agent suppressed a reply (stop word, injection
	// guard). Remove the placeholder and send nothing.
	if msg.Content == "" && len(msg.Media) == 0 {
		if pID, ok := c.placeholders.Load(localKey); ok {
			c.placeholders.Delete(localKey)
			_ = c.deleteMessage(ctx, chatID, pID.(int))
		}
		return nil
	}

	if len(msg.Media) > 0 {
		if pID, ok := c.placeholders.Load(localKey); ok {
			c.placeholders.Delete(localKey)
			_ = c.deleteMessage(ctx, chatID, pID.(int))
		}
		return c.sendMediaMessage(ctx, chatID, msg, replyToMsgID, threadID)
	}

	content := msg.Content

	// Try to edit the placeholder message in place; fall through to a new
	// chunked send if the content no longer fits or the edit fails.
	if pID, ok := c.placeholders.Load(localKey); ok {
		c.placeholders.Delete(localKey)
		if len(content) <= telegramMaxMessageLen {
			if err := c.editMessage(ctx, chatID, pID.(int), content); err == nil {
				return nil
			}
		}
		_ = c.deleteMessage(ctx, chatID, pID.(int))
	}

	chunks := chunkText(content, telegramMaxMessageLen)
	for i, chunk := range chunks {
		replyTo := 0
		if i == 0 {
			replyTo = replyToMsgID
		}
		if err := c.sendText(ctx, chatID, chunk, replyTo, threadID); err != nil {
			return err
		}
	}
	return nil
}

// sendMediaMessage sends a message with one or more media attachments,
// routing on content type and splitting an overlong caption into follow-up
// text messages.
func (c *Channel) sendMediaMessage(ctx context.Context, chatID int64, msg bus.OutboundMessage, replyTo, threadID int) error {
	chatIDObj := tu.ID(chatID)

	for _, media := range msg.Media {
		caption := media.Caption
		if caption == "" && msg.Content != "" {
			caption = msg.Content
			msg.Content = ""
		}

		var followUpText string
		if len(caption) > telegramCaptionMaxLen {
			followUpText = caption[telegramCaptionMaxLen:]
			caption = caption[:telegramCaptionMaxLen]
		}

		ct := strings.ToLower(media.ContentType)
		var err error
		switch {
		case strings.HasPrefix(ct, "image/"):
			err = c.sendPhoto(ctx, chatIDObj, media.URL, caption, replyTo, threadID)
		case strings.HasPrefix(ct, "video/"):
			err = c.sendVideo(ctx, chatIDObj, media.URL, caption, replyTo, threadID)
		case strings.HasPrefix(ct, "audio/"):
			err = c.sendAudio(ctx, chatIDObj, media.URL, caption, replyTo, threadID)
		default:
			err = c.sendDocument(ctx, chatIDObj, media.URL, caption, replyTo, threadID)
		}
		if err != nil {
			return err
		}
		replyTo = 0

		if followUpText != "" {
			for _, chunk := range chunkText(followUpText, telegramMaxMessageLen) {
				if err := c.sendText(ctx, chatID, chunk, 0, threadID); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// sendText sends a single plain-text message.
func (c *Channel) sendText(ctx context.Context, chatID int64, text string, replyTo, threadID int) error {
	tgMsg := tu.Message(tu.ID(chatID), text)
	if sendThreadID := resolveThreadIDForSend(threadID); sendThreadID > 0 {
		tgMsg.MessageThreadID = sendThreadID
	}
	if replyTo > 0 {
		tgMsg.ReplyParameters = &telego.ReplyParameters{MessageID: replyTo}
	}
	_, err := c.bot.SendMessage(ctx, tgMsg)
	return err
}

func (c *Channel) sendPhoto(ctx context.Context, chatID telego.ChatID, filePath, caption string, replyTo, threadID int) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open photo %s: %w", filePath, err)
	}
	defer file.Close()

	params := &telego.SendPhotoParams{ChatID: chatID, Photo: telego.InputFile{File: file}, Caption: caption}
	if sendThreadID := resolveThreadIDForSend(threadID); sendThreadID > 0 {
		params.MessageThreadID = sendThreadID
	}
	if replyTo > 0 {
		params.ReplyParameters = &telego.ReplyParameters{MessageID: replyTo}
	}
	_, err = c.bot.SendPhoto(ctx, params)
	return err
}

func (c *Channel) sendVideo(ctx context.Context, chatID telego.ChatID, filePath, caption string, replyTo, threadID int) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open video %s: %w", filePath, err)
	}
	defer file.Close()

	params := &telego.SendVideoParams{ChatID: chatID, Video: telego.InputFile{File: file}, Caption: caption}
	if sendThreadID := resolveThreadIDForSend(threadID); sendThreadID > 0 {
		params.MessageThreadID = sendThreadID
	}
	if replyTo > 0 {
		params.ReplyParameters = &telego.ReplyParameters{MessageID: replyTo}
	}
	_, err = c.bot.SendVideo(ctx, params)
	return err
}

func (c *Channel) sendAudio(ctx context.Context, chatID telego.ChatID, filePath, caption string, replyTo, threadID int) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open audio %s: %w", filePath, err)
	}
	defer file.Close()

	params := &telego.SendAudioParams{ChatID: chatID, Audio: telego.InputFile{File: file}, Caption: caption}
	if sendThreadID := resolveThreadIDForSend(threadID); sendThreadID > 0 {
		params.MessageThreadID = sendThreadID
	}
	if replyTo > 0 {
		params.ReplyParameters = &telego.ReplyParameters{MessageID: replyTo}
	}
	_, err = c.bot.SendAudio(ctx, params)
	return err
}

func (c *Channel) sendDocument(ctx context.Context, chatID telego.ChatID, filePath, caption string, replyTo, threadID int) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open document %s: %w", filePath, err)
	}
	defer file.Close()

	params := &telego.SendDocumentParams{ChatID: chatID, Document: telego.InputFile{File: file}, Caption: caption}
	if sendThreadID := resolveThreadIDForSend(threadID); sendThreadID > 0 {
		params.MessageThreadID = sendThreadID
	}
	if replyTo > 0 {
		params.ReplyParameters = &telego.ReplyParameters{MessageID: replyTo}
	}
	_, err = c.bot.SendDocument(ctx, params)
	return err
}

func (c *Channel) editMessage(ctx context.Context, chatID int64, messageID int, text string) error {
	editMsg := tu.EditMessageText(tu.ID(chatID), messageID, text)
	_, err := c.bot.EditMessageText(ctx, editMsg)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "message is not modified") {
		return nil
	}
	return err
}

func (c *Channel) deleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return c.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(chatID),
		MessageID: messageID,
	})
}

// chunkText splits text into chunks no longer than max, preferring to break
// on the last newline before the limit so messages don't split mid-sentence.
func chunkText(text string, max int) []string {
	if len(text) <= max {
		return []string{text}
	}
	var chunks []string
	for len(text) > max {
		cutAt := max
		if idx := strings.LastIndexByte(text[:max], '\n'); idx > max/2 {
			cutAt = idx + 1
		}
		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
