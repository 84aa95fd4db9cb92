package prompts

// Library is the complete prompt library the ingestion and maintenance
// pipelines draw from.
type Library interface {
	ExtractNodes() ExtractNodesPrompt
	DedupeNodes() DedupeNodesPrompt
	ExtractEdges() ExtractEdgesPrompt
	DedupeEdges() DedupeEdgesPrompt
	InvalidateEdges() InvalidateEdgesPrompt
	ExtractEdgeDates() ExtractEdgeDatesPrompt
	SummarizeNodes() SummarizeNodesPrompt
	Communities() CommunitiesPrompt
}

// LibraryImpl implements the Library interface.
type LibraryImpl struct {
	extractNodes     ExtractNodesPrompt
	dedupeNodes      DedupeNodesPrompt
	extractEdges     ExtractEdgesPrompt
	dedupeEdges      DedupeEdgesPrompt
	invalidateEdges  InvalidateEdgesPrompt
	extractEdgeDates ExtractEdgeDatesPrompt
	summarizeNodes   SummarizeNodesPrompt
	communities      CommunitiesPrompt
}

func (l *LibraryImpl) ExtractNodes() ExtractNodesPrompt         { return l.extractNodes }
func (l *LibraryImpl) DedupeNodes() DedupeNodesPrompt           { return l.dedupeNodes }
func (l *LibraryImpl) ExtractEdges() ExtractEdgesPrompt         { return l.extractEdges }
func (l *LibraryImpl) DedupeEdges() DedupeEdgesPrompt           { return l.dedupeEdges }
func (l *LibraryImpl) InvalidateEdges() InvalidateEdgesPrompt   { return l.invalidateEdges }
func (l *LibraryImpl) ExtractEdgeDates() ExtractEdgeDatesPrompt { return l.extractEdgeDates }
func (l *LibraryImpl) SummarizeNodes() SummarizeNodesPrompt     { return l.summarizeNodes }
func (l *LibraryImpl) Communities() CommunitiesPrompt           { return l.communities }

// NewLibrary creates a new prompt library instance.
func NewLibrary() Library {
	return &LibraryImpl{
		extractNodes:     NewExtractNodesVersions(),
		dedupeNodes:      NewDedupeNodesVersions(),
		extractEdges:     NewExtractEdgesVersions(),
		dedupeEdges:      NewDedupeEdgesVersions(),
		invalidateEdges:  NewInvalidateEdgesVersions(),
		extractEdgeDates: NewExtractEdgeDatesVersions(),
		summarizeNodes:   NewSummarizeNodesVersions(),
		communities:      NewCommunitiesVersions(),
	}
}

// DefaultLibrary is the default prompt library instance.
var DefaultLibrary = NewLibrary()
