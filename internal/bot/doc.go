// Package bot — “склейка” вокруг discordgo, gemini, tts и voice, реализующая
// голосового собеседника для Discord. Бот:
//   - регистрирует слэш-команды /join, /leave, /save, /status (в режиме
//     разработки — только на одном сервере, иначе глобально);
//   - понимает текстовые команды (!help, !join, !leave, !save, !status,
//     !prompt, !gain);
//   - держит не больше одного голосового подключения на все сервера;
//   - для каждой голосовой сессии поднимает Gemini Live и конвейер voice;
//   - по /save складывает последние реплики в архив (internal/archive).
//
// Жизненный цикл:
//   - Создать бота через New(Params{...}).
//   - Запустить Start(ctx) и остановить Stop(ctx).
//
// Пример:
//
//	b, err := bot.New(bot.Params{Settings: s, Store: st, Gemini: sm, TTS: tc, ...})
//	if err != nil { log.Fatal(err) }
//	if err := b.Start(ctx); err != nil { log.Fatal(err) }
//	defer b.Stop(context.Background())
//
// Рантайм-состояние (промпт и усиление входа) хранится в config.Store:
// команды !prompt и !gain меняют его и сразу сохраняют на диск.
package bot
