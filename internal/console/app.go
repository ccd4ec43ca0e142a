package console

import (
	"fmt"

	"finetune-console/internal/client"
	"finetune-console/internal/router"
	"finetune-console/internal/session"
	"finetune-console/internal/transport"
)

// App is the client side of one console process: the session store, the
// navigator and the API clients.
type App struct {
	Store *session.Store
	Nav   *router.Navigator

	// Auth bypasses the session policy; the rest go through it.
	Auth  *client.AuthClient
	Tasks *client.TaskClient
	Files *client.FileClient
	Chat  *client.ChatClient
}

func NewApp(cfg transport.Config, persister session.Persister) (*App, error) {
	store, err := session.NewStore(persister)
	if err != nil {
		return nil, fmt.Errorf("error loading session: %w", err)
	}

	raw := transport.New(cfg, store)
	nav := router.NewNavigator(store)
	policy := session.NewPolicy(raw, store, nav)

	return &App{
		Store: store,
		Nav:   nav,
		Auth:  client.NewAuthClient(raw),
		Tasks: client.NewTaskClient(policy),
		Files: client.NewFileClient(policy),
		Chat:  client.NewChatClient(policy),
	}, nil
}
