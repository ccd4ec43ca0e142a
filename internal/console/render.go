package console

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"finetune-console/internal/screens"
	"finetune-console/pkg/api"
)

func renderBanner(out io.Writer, baseURL string) {
	fmt.Fprintln(out, "Finetune console")
	fmt.Fprintf(out, "API: %s\n", baseURL)
	fmt.Fprintln(out, "Type help for commands.")
}

func renderHelp(out io.Writer) {
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  login [user] [--remember]     Log in (prompts for missing values)")
	fmt.Fprintln(out, "  register                      Create an account")
	fmt.Fprintln(out, "  logout                        Forget the saved session")
	fmt.Fprintln(out, "  whoami                        Show the logged in user")
	fmt.Fprintln(out, "  tasks                         List training tasks")
	fmt.Fprintln(out, "  submit --name N --dataset D   Submit a training task (see submit --help)")
	fmt.Fprintln(out, "  task <id>                     Show a task")
	fmt.Fprintln(out, "  logs                          Show the logs of the open task")
	fmt.Fprintln(out, "  datasets                      List datasets")
	fmt.Fprintln(out, "  upload <file>                 Upload a dataset file")
	fmt.Fprintln(out, "  delete <id>                   Delete a dataset")
	fmt.Fprintln(out, "  generate <topic> [--filename] Generate a dataset with the LLM")
	fmt.Fprintln(out, "  models                        List trained models")
	fmt.Fprintln(out, "  chat                          Open the chat screen")
	fmt.Fprintln(out, "  model <name|path>             Pick the chat model")
	fmt.Fprintln(out, "  say <text>                    Send a chat message (plain text works on the chat screen)")
	fmt.Fprintln(out, "  clear                         Clear the chat history")
	fmt.Fprintln(out, "  help                          Show commands")
	fmt.Fprintln(out, "  exit | quit                   Exit")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "On the chat screen a line with more than one word is a message. Prefix")
	fmt.Fprintln(out, "commands with a slash there, e.g. /model qa_model or /task <id>.")
}

func renderError(out io.Writer, msg string) {
	fmt.Fprintf(out, "error: %s\n", msg)
}

func renderInfo(out io.Writer, format string, args ...any) {
	fmt.Fprintf(out, format+"\n", args...)
}

func renderTasks(out io.Writer, tasks []api.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(out, "no tasks")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tMODEL\tSTATUS\tCREATED")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.TaskId, t.Name, t.ModelName, screens.StatusLabel(t.Status), t.CreatedAt)
	}
	w.Flush()
}

func renderTask(out io.Writer, t api.Task) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "id:\t%s\n", t.TaskId)
	fmt.Fprintf(w, "name:\t%s\n", t.Name)
	fmt.Fprintf(w, "status:\t%s\n", screens.StatusLabel(t.Status))
	fmt.Fprintf(w, "model:\t%s\n", t.ModelName)
	fmt.Fprintf(w, "dataset:\t%s\n", t.DatasetPath)
	if t.Stage != "" {
		fmt.Fprintf(w, "stage:\t%s\n", t.Stage)
	}
	fmt.Fprintf(w, "epochs:\t%g\n", t.Epochs)
	fmt.Fprintf(w, "learning rate:\t%g\n", t.LearningRate)
	fmt.Fprintf(w, "batch size:\t%d\n", t.BatchSize)
	if t.GradientAccumulationSteps > 0 {
		fmt.Fprintf(w, "grad accumulation:\t%d\n", t.GradientAccumulationSteps)
	}
	fmt.Fprintf(w, "output:\t%s\n", t.OutputDir)
	fmt.Fprintf(w, "created:\t%s\n", t.CreatedAt)
	fmt.Fprintf(w, "updated:\t%s\n", t.UpdatedAt)
	w.Flush()
}

func renderDatasets(out io.Writer, files []api.DatasetFile) {
	if len(files) == 0 {
		fmt.Fprintln(out, "no datasets")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFILENAME\tSIZE\tCREATED")
	for _, f := range files {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.FileId, f.Filename, screens.FormatSize(f.Size), f.CreatedAt)
	}
	w.Flush()
}

func renderModels(out io.Writer, models []api.ModelFile) {
	if len(models) == 0 {
		fmt.Fprintln(out, "no models")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tBASE MODEL\tPATH\tSIZE\tCREATED")
	for _, m := range models {
		base, size := "-", "-"
		if m.BaseModelPath != nil {
			base = *m.BaseModelPath
		}
		if m.Size != nil {
			size = screens.FormatSize(*m.Size)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.Name, base, m.ModelPath, size, m.CreatedAt)
	}
	w.Flush()
}

func renderMessage(out io.Writer, msg api.ChatMessage) {
	fmt.Fprintf(out, "%s> %s\n", msg.Role, strings.TrimRight(msg.Content, "\n"))
}
