package bot

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/searchbot/core/telegram"
	tghelpers "github.com/m3rciful/searchbot/core/telegram/helpers"
	"github.com/m3rciful/searchbot/search"
)

const startText = "Привет! Я ищу посты в каналах по ключевой фразе и пересылаю найденное сюда.\n\n" +
	"/set_channels - задать список каналов\n" +
	"/set_query - задать ключевую фразу\n" +
	"/start_searching - запустить поиск\n" +
	"/reset_channels - сбросить список каналов"

func senderName(c tele.Context) string {
	if user := c.Sender(); user != nil {
		return user.Username
	}
	return ""
}

func senderID(c tele.Context) int64 {
	if user := c.Sender(); user != nil {
		return user.ID
	}
	return 0
}

func (a *App) handleStart(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "start")
	a.orch.Touch(ctx, senderID(c), senderName(c))
	return tghelpers.SendText(c, startText)
}

func (a *App) helpHandler(reg *tg.Registry) tele.HandlerFunc {
	return func(c tele.Context) error {
		tghelpers.WithHandler(c, "help")
		var b strings.Builder
		b.WriteString("Доступные команды:\n")
		for _, cmd := range reg.ListCommands(true) {
			fmt.Fprintf(&b, "%s - %s\n", cmd.Text, cmd.Description)
		}
		return tghelpers.SendText(c, b.String())
	}
}

// commandHandler adapts a workflow command to a bot handler.
func (a *App) commandHandler(cmd search.Command) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.WithHandler(c, strings.TrimPrefix(string(cmd), "/"))
		return a.orch.HandleCommand(ctx, senderID(c), senderName(c), cmd)
	}
}

// handleFreeText feeds any non-command text into the workflow. Outside of an
// active conversation step the orchestrator ignores it, but first contact
// still creates the session and greets the user.
func (a *App) handleFreeText(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "text")
	return a.orch.HandleText(ctx, senderID(c), senderName(c), c.Text())
}

// handleUnknownText answers free text outside of any conversation step with
// a short usage hint. First contact still creates the session and greets.
func (a *App) handleUnknownText(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "fallback")
	a.orch.Touch(ctx, senderID(c), senderName(c))
	return tghelpers.SendText(c, "Я понимаю только команды. Отправьте /help за списком.")
}

func (a *App) handleStatus(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "status")

	var b strings.Builder
	fmt.Fprintf(&b, "Сессий: %d\n", a.store.Count())
	if a.authState != nil {
		fmt.Fprintf(&b, "Релей: %s\n", a.authState())
	}
	if a.scanCount != nil {
		if n, err := a.scanCount(ctx); err == nil {
			fmt.Fprintf(&b, "Сканов записано: %d\n", n)
		} else {
			b.WriteString("Сканов записано: недоступно\n")
		}
	}
	return tghelpers.SendText(c, b.String())
}

func adminRejectHandler(c tele.Context) error {
	return tghelpers.SendText(c, "Команда доступна только администратору.")
}
