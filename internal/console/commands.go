package console

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"finetune-console/internal/router"
	"finetune-console/internal/screens"
	"finetune-console/internal/session"
	"finetune-console/internal/transport"
	"finetune-console/pkg/api"

	"github.com/spf13/pflag"
)

// commands maps a command word to its handler. A nil handler exits.
var commands = map[string]command{
	"help":     (*Console).cmdHelp,
	"login":    (*Console).cmdLogin,
	"register": (*Console).cmdRegister,
	"logout":   (*Console).cmdLogout,
	"whoami":   (*Console).cmdWhoami,
	"tasks":    (*Console).cmdTasks,
	"submit":   (*Console).cmdSubmit,
	"task":     (*Console).cmdTask,
	"logs":     (*Console).cmdLogs,
	"datasets": (*Console).cmdDatasets,
	"upload":   (*Console).cmdUpload,
	"delete":   (*Console).cmdDelete,
	"generate": (*Console).cmdGenerate,
	"models":   (*Console).cmdModels,
	"chat":     (*Console).cmdChat,
	"model":    (*Console).cmdModel,
	"clear":    (*Console).cmdClear,
	"exit":     nil,
	"quit":     nil,
}

func (c *Console) flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(c.out)
	return fs
}

func (c *Console) parseFlags(fs *pflag.FlagSet, args []string) bool {
	if err := fs.Parse(args); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			renderError(c.out, err.Error())
		}
		return false
	}
	return true
}

func (c *Console) cmdHelp(ctx context.Context, args []string) {
	renderHelp(c.out)
}

func (c *Console) cmdLogin(ctx context.Context, args []string) {
	fs := c.flags("login")
	remember := fs.BoolP("remember", "r", false, "keep the session for 7 days")
	if !c.parseFlags(fs, args) {
		return
	}

	c.enter(router.PathLogin)
	s := screens.NewLogin(c.app.Auth, c.app.Store, c.app.Nav)
	s.RememberMe = *remember

	if fs.NArg() > 0 {
		s.UsernameOrEmail = fs.Arg(0)
	} else if s.UsernameOrEmail, _ = c.prompt("username or email: "); s.UsernameOrEmail == "" {
		renderError(c.out, "username or email is required")
		return
	}
	password, ok := c.secret("password: ")
	if !ok {
		return
	}
	s.Password = password

	stop := c.spinner("logging in")
	err := s.Submit(ctx)
	stop()
	if err != nil {
		c.fail(err, s.Error)
		return
	}

	user, _ := c.app.Store.User()
	renderInfo(c.out, "logged in as %s", user.Username)
}

func (c *Console) cmdRegister(ctx context.Context, args []string) {
	c.enter(router.PathRegister)
	s := screens.NewRegister(c.app.Auth, c.app.Nav)

	if len(args) > 0 {
		s.Username = args[0]
	} else {
		s.Username, _ = c.prompt("username: ")
	}
	s.Email, _ = c.prompt("email: ")

	var ok bool
	if s.Password, ok = c.secret("password: "); !ok {
		return
	}
	if s.ConfirmPassword, ok = c.secret("confirm password: "); !ok {
		return
	}

	stop := c.spinner("registering")
	err := s.Submit(ctx)
	stop()
	if err != nil {
		c.fail(err, s.Error)
		return
	}
	renderInfo(c.out, "account created; log in with: login %s", strings.TrimSpace(s.Username))
}

func (c *Console) cmdLogout(ctx context.Context, args []string) {
	c.app.Store.Clear()
	c.enter(router.PathLogin)
	renderInfo(c.out, "logged out")
}

func (c *Console) cmdWhoami(ctx context.Context, args []string) {
	user, err := c.app.Store.CurrentUser(ctx, c.app.Auth)
	if errors.Is(err, session.ErrUnauthenticated) {
		renderInfo(c.out, "not logged in")
		return
	}
	if err != nil {
		// The auth client bypasses the session policy, so a rejected token
		// is dropped here.
		var authErr *transport.AuthenticationError
		if errors.As(err, &authErr) && c.app.Store.ClearIfToken(authErr.Token()) {
			c.app.Nav.RedirectToLogin()
			return
		}
		c.fail(err, transport.Message(err, "failed to load user"))
		return
	}
	renderInfo(c.out, "%s <%s>", user.Username, user.Email)
}

func (c *Console) cmdTasks(ctx context.Context, args []string) {
	if !c.enter(router.PathTasks) {
		return
	}
	s := screens.NewTaskList(c.app.Tasks)

	stop := c.spinner("loading tasks")
	err := s.Load(ctx)
	stop()
	if err != nil {
		c.fail(err, s.Error)
		return
	}
	renderTasks(c.out, s.Tasks)
}

func (c *Console) cmdSubmit(ctx context.Context, args []string) {
	fs := c.flags("submit")
	name := fs.StringP("name", "n", "", "task name")
	model := fs.StringP("model", "m", "", "base model (default: first available model)")
	dataset := fs.StringP("dataset", "d", "", "dataset id, filename or path")
	stage := fs.String("stage", api.DefaultStage, "training stage")
	template := fs.String("template", "", "prompt template (default: backend default)")
	epochs := fs.Float64("epochs", api.DefaultEpochs, "training epochs")
	learningRate := fs.Float64("learning-rate", api.DefaultLearningRate, "learning rate")
	batchSize := fs.Int("batch-size", api.DefaultBatchSize, "per device batch size")
	gradAcc := fs.Int("grad-accumulation", api.DefaultGradientAccumulationSteps, "gradient accumulation steps")
	noFP16 := fs.Bool("no-fp16", false, "train in full precision")
	outputDir := fs.String("output-dir", "", "output directory (default: backend default)")
	if !c.parseFlags(fs, args) {
		return
	}

	if !c.enter(router.PathSubmit) {
		return
	}
	s := screens.NewSubmitTask(c.app.Tasks, c.app.Files, c.app.Nav)

	stop := c.spinner("loading datasets and models")
	err := s.Load(ctx)
	stop()
	if err != nil {
		c.fail(err, s.Error)
		return
	}

	s.Form.Name = *name
	if *model != "" {
		s.Form.ModelName = *model
	}
	s.Form.DatasetPath = resolveDataset(s.Datasets, *dataset)
	s.Form.Stage = *stage
	s.Form.Template = *template
	s.Form.Epochs = *epochs
	s.Form.LearningRate = *learningRate
	s.Form.BatchSize = *batchSize
	s.Form.GradientAccumulationSteps = *gradAcc
	s.Form.OutputDir = *outputDir
	if *noFP16 {
		fp16 := false
		s.Form.FP16 = &fp16
	}

	stop = c.spinner("submitting task")
	task, err := s.Submit(ctx)
	stop()
	if err != nil {
		c.fail(err, s.Error)
		return
	}
	renderInfo(c.out, "submitted task %s (%s)", task.TaskId, screens.StatusLabel(task.Status))
}

// resolveDataset maps a dataset id or filename to its storage path. Anything
// else is sent as given.
func resolveDataset(datasets []api.DatasetFile, ref string) string {
	for _, d := range datasets {
		if d.FileId == ref || d.Filename == ref {
			return d.FilePath
		}
	}
	return ref
}

func (c *Console) cmdTask(ctx context.Context, args []string) {
	if len(args) != 1 {
		renderError(c.out, "usage: task <id>")
		return
	}
	if !c.enter(router.TaskPath(args[0])) {
		return
	}
	s := screens.NewTaskDetail(c.app.Tasks, c.app.Nav.Current().Param("taskId"))

	stop := c.spinner("loading task")
	err := s.Load(ctx)
	stop()
	if err != nil {
		c.fail(err, s.Error)
		return
	}
	c.detail = s

	if s.NotFound {
		renderInfo(c.out, "%s", s)
		return
	}
	renderTask(c.out, *s.Task)
}

func (c *Console) cmdLogs(ctx context.Context, args []string) {
	if c.detail == nil || c.app.Nav.Current().Screen != router.ScreenTaskDetail {
		renderError(c.out, "open a task first: task <id>")
		return
	}

	stop := c.spinner("loading logs")
	err := c.detail.FetchLogs(ctx)
	stop()
	if err != nil {
		c.fail(err, c.detail.Error)
		return
	}
	fmt.Fprintln(c.out, strings.TrimRight(c.detail.DisplayLogs(), "\n"))
}

func (c *Console) cmdDatasets(ctx context.Context, args []string) {
	if !c.enter(router.PathDatasets) {
		return
	}
	s := screens.NewDatasets(c.app.Files)

	stop := c.spinner("loading datasets")
	err := s.Load(ctx)
	stop()
	if err != nil {
		c.fail(err, s.Error)
		return
	}
	renderDatasets(c.out, s.Files)
}

func (c *Console) cmdUpload(ctx context.Context, args []string) {
	if len(args) != 1 {
		renderError(c.out, "usage: upload <file>")
		return
	}
	if !c.enter(router.PathDatasets) {
		return
	}
	s := screens.NewDatasets(c.app.Files)

	f, err := os.Open(args[0])
	if err != nil {
		renderError(c.out, err.Error())
		return
	}
	defer f.Close()

	stop := c.spinner("uploading " + filepath.Base(args[0]))
	file, err := s.Upload(ctx, filepath.Base(args[0]), f)
	stop()
	if err != nil {
		c.fail(err, s.Error)
		return
	}
	renderInfo(c.out, "uploaded %s (%s)", file.Filename, screens.FormatSize(file.Size))
	renderDatasets(c.out, s.Files)
}

func (c *Console) cmdDelete(ctx context.Context, args []string) {
	if len(args) != 1 {
		renderError(c.out, "usage: delete <id>")
		return
	}
	if !c.enter(router.PathDatasets) {
		return
	}
	s := screens.NewDatasets(c.app.Files)

	if err := s.Load(ctx); err != nil {
		c.fail(err, s.Error)
		return
	}

	label := args[0]
	for _, f := range s.Files {
		if f.FileId == args[0] {
			label = f.Filename
		}
	}
	if !c.confirm(fmt.Sprintf("Delete dataset %s?", label)) {
		renderInfo(c.out, "cancelled")
		return
	}

	if err := s.Delete(ctx, args[0]); err != nil {
		c.fail(err, s.Error)
		return
	}
	renderInfo(c.out, "deleted %s", label)
	renderDatasets(c.out, s.Files)
}

func (c *Console) cmdGenerate(ctx context.Context, args []string) {
	fs := c.flags("generate")
	filename := fs.StringP("filename", "f", "", "name of the generated file")
	if !c.parseFlags(fs, args) {
		return
	}
	if !c.enter(router.PathDatasets) {
		return
	}
	s := screens.NewDatasets(c.app.Files)

	stop := c.spinner("generating dataset")
	file, err := s.Generate(ctx, strings.Join(fs.Args(), " "), *filename)
	stop()
	if err != nil {
		c.fail(err, s.Error)
		return
	}
	renderInfo(c.out, "generated %s (%s)", file.Filename, screens.FormatSize(file.Size))
	renderDatasets(c.out, s.Files)
}

func (c *Console) cmdModels(ctx context.Context, args []string) {
	if !c.enter(router.PathModels) {
		return
	}
	s := screens.NewModels(c.app.Files)

	stop := c.spinner("loading models")
	err := s.Load(ctx)
	stop()
	if err != nil {
		c.fail(err, s.Error)
		return
	}
	renderModels(c.out, s.Models)
}

func (c *Console) cmdChat(ctx context.Context, args []string) {
	if !c.enter(router.PathChat) {
		return
	}
	if c.chat == nil {
		c.chat = screens.NewChat(c.app.Chat, c.app.Files)
	}

	stop := c.spinner("loading models")
	err := c.chat.Load(ctx)
	stop()
	if err != nil {
		c.fail(err, c.chat.Error)
		return
	}

	if c.chat.ModelPath == "" {
		renderInfo(c.out, "no models available yet; train one first")
		return
	}
	renderInfo(c.out, "chatting with %s; type a message, or /model <name> to switch", c.chatModelName())
}

func (c *Console) chatModelName() string {
	for _, m := range c.chat.Models {
		if m.ModelPath == c.chat.ModelPath {
			return m.Name
		}
	}
	return c.chat.ModelPath
}

func (c *Console) onChat() bool {
	if c.chat == nil || c.app.Nav.Current().Screen != router.ScreenChat {
		renderError(c.out, "open the chat screen first: chat")
		return false
	}
	return true
}

func (c *Console) cmdModel(ctx context.Context, args []string) {
	if !c.onChat() {
		return
	}
	if len(args) == 0 {
		for _, m := range c.chat.Models {
			marker := " "
			if m.ModelPath == c.chat.ModelPath {
				marker = "*"
			}
			fmt.Fprintf(c.out, "%s %s\t%s\n", marker, m.Name, m.ModelPath)
		}
		return
	}
	if err := c.chat.SelectModel(strings.Join(args, " ")); err != nil {
		c.fail(err, c.chat.Error)
		return
	}
	renderInfo(c.out, "chatting with %s", c.chatModelName())
}

func (c *Console) cmdSay(ctx context.Context, args []string) {
	if !c.onChat() {
		return
	}

	stop := c.spinner("waiting for reply")
	reply, err := c.chat.Send(ctx, strings.Join(args, " "))
	stop()
	if err != nil {
		c.fail(err, c.chat.Error)
		return
	}
	renderMessage(c.out, reply)
}

func (c *Console) cmdClear(ctx context.Context, args []string) {
	if !c.onChat() {
		return
	}
	c.chat.Clear()
	renderInfo(c.out, "chat history cleared")
}
