// Package gemini реализует WebSocket-клиент Gemini Live (BidiGenerateContent)
// в текстовой модальности: на вход — фраза пользователя (16 kHz mono s16le),
// на выход — текст ответа модели.
//
// Кадры протокола — JSON; setup и ответы сервера берутся из
// google.golang.org/genai (LiveClientSetup / LiveServerMessage), кадр
// realtimeInput с audio/audioStreamEnd описан в пакете. Транспорт —
// gorilla/websocket.
//
// После подключения клиент отправляет setup (модель, TEXT, системная
// инструкция) и ждёт setupComplete. Ответ копится из текстовых частей
// modelTurn до turnComplete.
//
// Устойчивость:
//   - Запись в сокет сериализована (мьютекс + write-deadline).
//   - Keep-alive через ws ping. При обрыве — экспоненциальный реконнект
//     (1s -> 30s) с повторным setup, ожидающий запрос завершается ошибкой.
//   - Ответ, опоздавший после ErrReplyTimeout, дочитывается и отбрасывается
//     следующим Ask.
//
// SessionManager держит по одному клиенту на гильдию.
//
// Пример:
//
//	c := gemini.New(gemini.Config{APIKey: key, Model: "gemini-2.0-flash-live-001"})
//	if err := c.Connect(ctx); err != nil { log.Fatal(err) }
//	defer c.Disconnect()
//	text, err := c.Ask(ctx, pcm16k)
package gemini
