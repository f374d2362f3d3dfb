package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"keyword-rag/internal/cache"
	"keyword-rag/internal/chromemdb"
	"keyword-rag/internal/config"
	"keyword-rag/internal/db"
	"keyword-rag/internal/helper"
	"keyword-rag/internal/llmservice"
	"keyword-rag/internal/models"
	"keyword-rag/internal/parser"
	"keyword-rag/internal/rag"
	"keyword-rag/internal/server"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	filePath := flag.String("file", "", "Path to the document file (defaults to rag.document_path)")
	query := flag.String("query", "", "Query to be answered")
	chat := flag.Bool("chat", false, "Start an interactive chat over the document")
	serve := flag.Bool("serve", false, "Serve the HTTP chat API")
	dryRun := flag.Bool("dry-run", false, "Print the document chunks and exit")
	flag.Parse()

	cfg := loadConfig(*configPath)
	if *filePath == "" {
		*filePath = cfg.RAG.DocumentPath
	}

	ctx := context.Background()

	if *dryRun {
		printChunks(*filePath, cfg)
		return
	}

	if *query == "" && !*chat && !*serve {
		log.Fatal().Msg("Please provide a query using the -query flag, or use -chat or -serve")
	}

	chunkCache, closeStore := newChunkCache(ctx, cfg)
	defer closeStore()

	model, err := llmservice.NewLLM(&cfg.LLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing llm")
	}
	r := rag.NewRAG(cfg, chunkCache, model, llmservice.CallOptions(&cfg.LLM)...)

	chunks, doc := loadDocument(ctx, r, *filePath, cfg)
	docKey := ""
	if doc != nil {
		docKey = doc.Key
	}

	switch {
	case *serve:
		serveAPI(r, cfg, docKey, chunks)
	case *chat:
		runChat(ctx, r, cfg, docKey, chunks)
	default:
		// a failed turn is reported, not fatal; the store is still released
		if err := answerQuery(ctx, r, cfg, chunks, *query); err != nil {
			log.Error().Err(err).Msg("Error querying")
			closeStore()
			os.Exit(1)
		}
	}
}

// loadConfig falls back to defaults when the default config file is absent.
func loadConfig(path string) *config.Config {
	cfg, err := config.LoadConfig(path)
	if errors.Is(err, fs.ErrNotExist) && path == configFilePath {
		log.Warn().Str("path", path).Msg("Config file not found, using defaults")
		cfg = config.Default()
		cfg.LLM.Key = os.Getenv("LLM_API_KEY")
	} else if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Error loading config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("Unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Debug().Str("provider", cfg.LLM.Provider).Str("model", cfg.LLM.Model).
		Str("policy", cfg.RAG.ChunkPolicy).Str("cache", cfg.Cache.Backend).Msg("Loaded config")
	return cfg
}

// newChunkCache builds the chunk cache with the configured persistent store.
// The returned func releases the store.
func newChunkCache(ctx context.Context, cfg *config.Config) (*cache.ChunkCache, func()) {
	var store cache.Store
	closeStore := func() {}

	switch cfg.Cache.Backend {
	case config.CacheBackendChromem:
		if err := helper.CreateFolder(cfg.Chromem.Path); err != nil {
			log.Fatal().Err(err).Msg("Error creating folder")
		}
		vdb, err := chromemdb.NewVectorDBManager(&cfg.Chromem)
		if err != nil {
			log.Fatal().Err(err).Msg("Error creating chunk database")
		}
		if cfg.Chromem.InMemory && cfg.Chromem.EncryptionKey != "" {
			if err := vdb.Import(ctx); err != nil {
				log.Warn().Err(err).Msg("No previous export imported")
			}
			closeStore = func() {
				if err := vdb.Export(ctx); err != nil {
					log.Error().Err(err).Msg("Error exporting collection")
				}
			}
		}
		log.Info().Str("collection", cfg.Chromem.Collection).Int("documents", vdb.Count()).Msg("Using chromem chunk store")
		store = vdb

	case config.CacheBackendPostgres:
		sqldb, err := db.ConnectDB(&cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Error connecting to database")
		}
		dbInstance := db.NewDB(sqldb, cfg.Database.Debug)
		if err := db.InitDB(ctx, dbInstance); err != nil {
			log.Fatal().Err(err).Msg("Error initializing database")
		}
		closeStore = func() { _ = dbInstance.Close() }
		log.Info().Str("driver", cfg.Database.Driver).Msg("Using postgres chunk store")
		store = db.NewChunkStore(dbInstance)
	}

	chunkCache, err := cache.New(cfg.Cache.Size, store)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating chunk cache")
	}
	return chunkCache, closeStore
}

// loadDocument indexes the document at path. An unavailable document leaves the
// assistant without context unless the config requires one.
func loadDocument(ctx context.Context, r *rag.RAG, path string, cfg *config.Config) ([]models.Chunk, *models.Document) {
	if path == "" {
		if cfg.RAG.RequireDocument {
			log.Fatal().Msg("Please provide a document file using the -file flag")
		}
		log.Warn().Msg("No document configured, answering without context")
		return nil, nil
	}

	chunks, doc, err := r.LoadFile(ctx, path)
	if err != nil {
		if cfg.RAG.RequireDocument {
			log.Fatal().Err(err).Msg("Error loading document")
		}
		log.Warn().Err(err).Msg("Document unavailable, answering without context")
		return nil, nil
	}
	log.Info().Str("source", doc.Source).Int("chunks", len(chunks)).Msg("Loaded document")
	return chunks, doc
}

func printChunks(path string, cfg *config.Config) {
	doc, err := parser.LoadFile(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Error parsing document")
	}
	chunks := parser.ChunkText(doc.Text, cfg.RAG)
	log.Info().Str("source", doc.Source).Str("policy", cfg.RAG.ChunkPolicy).Int("chunks", len(chunks)).Msg("Parsed content")
	helper.PrettyPrint(os.Stdout, chunks)
}

func streamOptions(cfg *config.Config) []llms.CallOption {
	if !cfg.LLM.Stream {
		return nil
	}
	return []llms.CallOption{llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		_, err := os.Stdout.Write(chunk)
		return err
	})}
}

func answerQuery(ctx context.Context, r *rag.RAG, cfg *config.Config, chunks []models.Chunk, query string) error {
	response, err := r.Query(ctx, chunks, query, streamOptions(cfg)...)
	if err != nil {
		return err
	}

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", query)

	log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", response.Source)

	if cfg.LLM.Stream {
		fmt.Println()
		return nil
	}
	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", response.Content)
	return nil
}

// runChat reads questions from stdin until EOF or /exit. /clear resets history.
func runChat(ctx context.Context, r *rag.RAG, cfg *config.Config, docKey string, chunks []models.Chunk) {
	id, err := helper.GenerateUUID()
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating session")
	}
	session := r.NewSession(id, docKey, chunks)
	opts := streamOptions(cfg)

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "/exit":
			return
		case "/clear":
			session.Reset()
			fmt.Println("History cleared.")
		default:
			resp, err := session.Ask(ctx, line, opts...)
			switch {
			case err != nil:
				fmt.Printf("Error: %v\n", err)
			case cfg.LLM.Stream:
				fmt.Println()
			default:
				fmt.Printf("%s\n", resp.Content)
			}
		}
		fmt.Print("> ")
	}
	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Msg("Error reading input")
	}
}

func serveAPI(r *rag.RAG, cfg *config.Config, docKey string, chunks []models.Chunk) {
	api := server.New(r, &cfg.Server)
	api.SetDefaultDocument(docKey, chunks)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.Router(),
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
}
