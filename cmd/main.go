package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"docchat/internal/chunker"
	"docchat/internal/helper"
	"docchat/internal/ingest"
	"docchat/internal/loader"
	"docchat/internal/server"
	"docchat/internal/session"
	"docchat/internal/tui"
	"docchat/internal/vectorstore/chromemdb"
)

const configFilePath = "./configs/config.yaml"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "docchat",
	Short:         "Chat with your documents",
	Long:          "docchat indexes a directory of documents into a vector store and answers questions about them with a language model.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load, split, embed and store the documents directory",
	Args:  cobra.NoArgs,
	RunE:  runIngest,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a single question",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the terminal chat box",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve chat sessions over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export (or with --import, restore) the chromem collection",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", configFilePath, "path to the config file")

	ingestCmd.Flags().String("dir", "", "documents directory (overrides loader.dir)")
	ingestCmd.Flags().StringSlice("pattern", nil, "glob pattern, repeatable (overrides loader.patterns)")
	ingestCmd.Flags().Bool("reset", false, "empty the vector store before indexing")
	ingestCmd.Flags().Bool("dry-run", false, "split and report without embedding or storing")

	askCmd.Flags().IntP("top-k", "k", 0, "number of chunks to retrieve (overrides rag.top_k)")
	askCmd.Flags().Bool("sources", false, "print the retrieved chunks")

	serveCmd.Flags().IntP("port", "p", 0, "listen port (overrides server.port)")

	exportCmd.Flags().StringP("file", "f", "", "export file (defaults to the store path)")
	exportCmd.Flags().Bool("import", false, "import the file instead of exporting")

	rootCmd.AddCommand(ingestCmd, askCmd, chatCmd, serveCmd, exportCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("docchat failed")
		stop()
		os.Exit(1)
	}
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = a.cfg.Loader.Dir
	}
	patterns, _ := cmd.Flags().GetStringSlice("pattern")
	if len(patterns) == 0 {
		patterns = a.cfg.Loader.Patterns
	}

	splitter, err := chunker.New(a.cfg.RAG.ChunkSize, a.cfg.RAG.ChunkOverlap)
	if err != nil {
		return err
	}
	l := loader.New(dir, patterns)

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		docs, err := l.Load(ctx)
		if err != nil {
			return err
		}
		chunks := splitter.SplitDocuments(docs)
		log.Info().Msgf("Now you have %d documents", len(chunks))
		if len(chunks) > 0 {
			helper.PrettyPrint(chunks[0])
		}
		return nil
	}

	if reset, _ := cmd.Flags().GetBool("reset"); reset {
		if err := a.store.Reset(ctx); err != nil {
			return fmt.Errorf("reset vector store: %w", err)
		}
	}

	stats, err := ingest.NewIndexer(splitter, a.embedder, a.store, a.cfg.RAG.EmbedBatchSize).Run(ctx, l)
	if err != nil {
		return err
	}
	a.emitter.IngestCompleted(ctx, stats.Documents, stats.Chunks, stats.Duration)
	helper.PrettyPrint(stats)
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := a.sessionOptions()
	if k, _ := cmd.Flags().GetInt("top-k"); k > 0 {
		opts.TopK = k
	}
	engine, err := a.engine()
	if err != nil {
		return err
	}

	question := strings.Join(args, " ")
	sess, err := session.New(engine, opts)
	if err != nil {
		return err
	}
	defer sess.Close()

	resp, err := sess.Ask(ctx, question)
	if err != nil {
		return err
	}

	if showSources, _ := cmd.Flags().GetBool("sources"); showSources {
		log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		helper.PrettyPrint(resp.Sources)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", resp.Content)
	return nil
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	engine, err := a.engine()
	if err != nil {
		return err
	}
	sess, err := session.New(engine, a.sessionOptions())
	if err != nil {
		return err
	}
	defer sess.Close()

	return tui.Run(ctx, sess)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	engine, err := a.engine()
	if err != nil {
		return err
	}
	port := a.cfg.Server.Port
	if p, _ := cmd.Flags().GetInt("port"); p > 0 {
		port = p
	}

	manager := session.NewManager(engine, a.sessionOptions())
	return server.NewServer(port, manager).Start(ctx)
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	db, ok := a.store.(*chromemdb.VectorDBManager)
	if !ok {
		return fmt.Errorf("export is only supported by the chromem backend, configured %q", a.cfg.VectorStore.Backend)
	}

	file, _ := cmd.Flags().GetString("file")
	if file == "" {
		file = db.ExportPath()
	}
	if doImport, _ := cmd.Flags().GetBool("import"); doImport {
		if err := db.Import(ctx, file); err != nil {
			return err
		}
		n, _ := db.Count(ctx)
		log.Info().Str("file", file).Int("documents", n).Msg("Imported collection")
		return nil
	}

	if err := db.Export(ctx, file); err != nil {
		return err
	}
	log.Info().Str("file", file).Msg("Exported collection")
	return nil
}
