package models

// Document is the raw text of one loaded file
type Document struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// Source returns the path the document was loaded from
func (d Document) Source() string {
	return d.Metadata[MetaSource]
}

// Chunk represents a bounded piece of a Document with inherited metadata
type Chunk struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Order    int               `json:"order"`
}

// Record is a chunk together with its embedding, as handed to the vector store
type Record struct {
	ID        string
	Content   string
	Metadata  map[string]string
	Embedding []float32
}

// Match is one nearest-neighbour hit returned by the vector store
type Match struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata"`
	Similarity float32           `json:"similarity"`
}

// Exchange is one question/answer pair of a conversation
type Exchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type PromptResponse struct {
	Query   string  `json:"query"`
	Prompt  string  `json:"-"`
	Sources []Match `json:"sources"`
	Content string  `json:"answer"`
}
