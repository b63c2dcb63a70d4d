package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/learnframe/learnframe-backend/internal/model"
	"github.com/learnframe/learnframe-backend/internal/quiz"
	"github.com/learnframe/learnframe-backend/internal/service"
)

const limitKey = "limit"

func resetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <wallet>",
		Short: "Abandons a wallet's running session and lifts its cooldown",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			wallet, err := model.ParseWallet(args[0])
			if err != nil {
				return err
			}

			e, err := openEnv(c.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			abandoned, err := e.ledger.ResetSession(c.Context(), wallet)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "reset %s (%d session(s) abandoned)\n", wallet.Hex(), abandoned)
			return nil
		},
	}
}

func cooldownCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cooldown <wallet>",
		Short: "Shows when a wallet may take the quiz again",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			wallet, err := model.ParseWallet(args[0])
			if err != nil {
				return err
			}

			e, err := openEnv(c.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			view, err := e.ledger.Cooldown(c.Context(), wallet)
			if err != nil {
				return err
			}
			return printJSON(c, view)
		},
	}
}

func historyCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "history <wallet>",
		Short: "Lists a wallet's recent sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			wallet, err := model.ParseWallet(args[0])
			if err != nil {
				return err
			}
			limit, err := c.Flags().GetInt(limitKey)
			if err != nil {
				return err
			}

			e, err := openEnv(c.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			sessions, err := e.ledger.History(c.Context(), wallet, limit)
			if err != nil {
				return err
			}
			return printJSON(c, sessions)
		},
	}
	c.Flags().Int(limitKey, 20, "Maximum number of sessions to list")
	return c
}

func questionsCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "questions",
		Short: "Inspects and publishes the question set",
	}
	c.AddCommand(
		&cobra.Command{
			Use:   "check [file]",
			Short: "Validates a question file, or the built-in set when no file is given",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(c *cobra.Command, args []string) error {
				path := ""
				if len(args) == 1 {
					path = args[0]
				}
				set, err := service.LoadQuestions(path)
				if err != nil {
					return err
				}
				return printQuestionSet(c, set)
			},
		},
		&cobra.Command{
			Use:   "warm",
			Short: "Writes the configured question set and answer key to Redis",
			Args:  cobra.NoArgs,
			RunE: func(c *cobra.Command, _ []string) error {
				e, err := openEnv(c.Context())
				if err != nil {
					return err
				}
				defer e.Close()

				if err := e.questions.WarmCache(c.Context()); err != nil {
					return err
				}
				fmt.Fprintln(c.OutOrStdout(), "question cache warmed")
				return nil
			},
		},
	)
	return c
}

func printQuestionSet(c *cobra.Command, set quiz.QuestionSet) error {
	out := c.OutOrStdout()
	for i := 0; i < quiz.QuestionCount; i++ {
		q := set.Question(i)
		fmt.Fprintf(out, "%2d. %s\n", i+1, q.Prompt)
		for _, opt := range q.Options {
			marker := " "
			if opt == q.Correct {
				marker = "*"
			}
			fmt.Fprintf(out, "     %s %s\n", marker, opt)
		}
	}
	return nil
}
