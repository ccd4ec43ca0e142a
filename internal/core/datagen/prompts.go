package datagen

import "text/template"

const DefaultRecordCount = 30

type systemPromptFields struct {
	NumRecords int
}

const systemPrompt = `You are a generator of high quality fine-tuning datasets. Follow these rules strictly: output a single plain JSON array and nothing else. Every object in the array has exactly three fields: instruction, input, output.
- instruction starts with "You are a professional expert in <the user's topic>." and then describes one concrete task.
- input carries any extra conditions the task needs, or an empty string when none are needed.
- output is a detailed, step by step answer written in the voice of that expert.
All pairs stay close to the user's topic and together cover basic concepts, advanced techniques, troubleshooting and solution design. Generate {{ .NumRecords }} distinct question and answer pairs in total. Start the JSON array right away.`

var systemPromptTmpl = template.Must(template.New("systemPrompt").Parse(systemPrompt))

type userPromptFields struct {
	Topic string
}

const userPrompt = `Hello, please generate a dataset about {{ .Topic }}.`

var userPromptTmpl = template.Must(template.New("userPrompt").Parse(userPrompt))
