package cli

import (
	"context"
)

// runOnce выполняет workflow один раз.
//
// Ошибка конфигурации возвращается до любых обращений к SharePoint.
func (a *App) runOnce(ctx context.Context) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	rt := a.build(ctx, cfg)
	defer rt.Close()

	_, err = rt.Run(ctx)
	return err
}
