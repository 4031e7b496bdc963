// Package ofx imports OFX/QFX bank and credit card statements as balanced
// ledger transactions.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/google/uuid"

	"github.com/Veraticus/spice-ledger/internal/model"
)

// fitidNamespace scopes UIDs derived from statement transaction IDs.
var fitidNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("ledger.ofx.fitid"))

// Parser implements OFX/QFX file parsing. It remembers the statement
// accounts of every file it parses.
type Parser struct {
	accounts         map[string]*model.Account
	defaultCommodity model.Commodity
	order            []string
}

// NewParser creates a new OFX parser. Statements without a currency are
// booked in model.DefaultCommodity.
func NewParser() *Parser {
	return NewParserWithCommodity(model.DefaultCommodity)
}

// NewParserWithCommodity creates a parser with a different fallback commodity.
func NewParserWithCommodity(commodity model.Commodity) *Parser {
	return &Parser{defaultCommodity: commodity, accounts: map[string]*model.Account{}}
}

// StatementAccountUID is the UID of the account a statement's lines post to.
func StatementAccountUID(accountID string) string {
	return "ofx-" + accountID
}

// Accounts returns the statement accounts seen so far, in parse order.
func (p *Parser) Accounts() []*model.Account {
	out := make([]*model.Account, 0, len(p.order))
	for _, uid := range p.order {
		out = append(out, p.accounts[uid])
	}
	return out
}

func (p *Parser) remember(accountID string, accountType model.AccountType, commodity model.Commodity) string {
	uid := StatementAccountUID(accountID)
	if _, ok := p.accounts[uid]; !ok {
		account := model.NewAccount("OFX "+accountID, accountType, commodity)
		account.UID = uid
		account.Description = "Imported statement account"
		p.accounts[uid] = account
		p.order = append(p.order, uid)
	}
	return uid
}

// preprocessOFX fixes common formatting issues in OFX files.
func (p *Parser) preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")

	// SEVERITY must be INFO, WARN, or ERROR
	severityRegex := regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)

	// SGML opening tags missing their closing bracket
	tagFixRegex := regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

func (p *Parser) parse(reader io.Reader) (*ofxgo.Response, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}
	return resp, nil
}

// ParseFile parses an OFX/QFX file into balanced transactions, in statement order.
func (p *Parser) ParseFile(_ context.Context, reader io.Reader) ([]*model.Transaction, error) {
	resp, err := p.parse(reader)
	if err != nil {
		return nil, err
	}

	var transactions []*model.Transaction
	var bankStmts, ccStmts int

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			bankStmts++
			if stmt.BankTranList == nil {
				continue
			}
			commodity := p.commodity(stmt.CurDef)
			accountUID := p.remember(string(stmt.BankAcctFrom.AcctID), model.AccountBank, commodity)
			transactions = append(transactions, p.convertAll(stmt.BankTranList.Transactions, accountUID, commodity)...)
		}
	}

	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			ccStmts++
			if stmt.BankTranList == nil {
				continue
			}
			commodity := p.commodity(stmt.CurDef)
			accountUID := p.remember(string(stmt.CCAcctFrom.AcctID), model.AccountCredit, commodity)
			transactions = append(transactions, p.convertAll(stmt.BankTranList.Transactions, accountUID, commodity)...)
		}
	}

	slog.Info("Parsed OFX file",
		"total_transactions", len(transactions),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)

	return transactions, nil
}

func (p *Parser) convertAll(ofxTxns []ofxgo.Transaction, accountUID string, commodity model.Commodity) []*model.Transaction {
	transactions := make([]*model.Transaction, 0, len(ofxTxns))
	for _, ofxTx := range ofxTxns {
		txn, err := p.convertTransaction(ofxTx, accountUID, commodity)
		if err != nil {
			slog.Warn("Skipping OFX transaction",
				"account", accountUID,
				"fitid", string(ofxTx.FiTID),
				"error", err)
			continue
		}
		transactions = append(transactions, txn)
	}
	return transactions
}

func (p *Parser) commodity(symbol ofxgo.CurrSymbol) model.Commodity {
	code := symbol.String()
	if code == "" || code == "XXX" {
		return p.defaultCommodity
	}
	return model.CommodityByCode(code)
}

// convertTransaction books a statement line against accountUID and balances
// it into the imbalance account for later categorization.
func (p *Parser) convertTransaction(ofxTx ofxgo.Transaction, accountUID string, commodity model.Commodity) (*model.Transaction, error) {
	amount, err := model.NewMoneyFromRat(&ofxTx.TrnAmt.Rat, commodity.Mnemonic)
	if err != nil {
		return nil, err
	}

	txn := model.NewTransaction(p.extractMerchantName(ofxTx))
	txn.SetUID(transactionUID(accountUID, string(ofxTx.FiTID)))
	txn.Commodity = amount.Commodity()
	txn.Timestamp = ofxTx.DtPosted.UTC()
	txn.Notes = strings.TrimSpace(string(ofxTx.Memo))
	if ofxTx.CheckNum != "" {
		txn.Notes = strings.TrimSpace(fmt.Sprintf("Check %s %s", ofxTx.CheckNum, txn.Notes))
	}

	// Deposits (positive amounts) debit the statement account
	split := model.NewSplit(amount.Abs(), accountUID)
	split.Type = model.Credit
	if !amount.IsNegative() {
		split.Type = model.Debit
	}
	split.Memo = strings.TrimSpace(string(ofxTx.Name))
	txn.AddSplit(split)

	txn.CreateAutoBalanceSplit()
	return txn, nil
}

// transactionUID derives a stable UID so re-importing a statement finds
// the transactions it already created.
func transactionUID(accountUID, fitID string) string {
	id := uuid.NewSHA1(fitidNamespace, []byte(accountUID+"\x00"+fitID))
	return strings.ReplaceAll(id.String(), "-", "")
}

// extractMerchantName tries to get a clean merchant name from OFX data.
func (p *Parser) extractMerchantName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return string(tx.Payee.Name)
	}

	name := string(tx.Name)

	// MEMO sometimes has better merchant info
	if tx.Memo != "" && isGenericDescription(name) {
		name = string(tx.Memo)
	}

	name = strings.TrimSpace(name)

	prefixes := []string{
		"POS PURCHASE ",
		"PURCHASE AUTHORIZED ON ",
		"DEBIT CARD PURCHASE ",
		"ACH DEBIT ",
		"CHECK CARD ",
		"VISA PURCHASE ",
		"MC PURCHASE ",
		"DEBIT PURCHASE ",
	}

	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// Leading "MM/DD " dates
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}

	return name
}

// isGenericDescription checks if a transaction name is too generic.
func isGenericDescription(name string) bool {
	generic := []string{
		"DEBIT",
		"CREDIT",
		"PURCHASE",
		"PAYMENT",
		"POS TRANSACTION",
		"CARD PURCHASE",
	}

	upperName := strings.ToUpper(name)
	for _, g := range generic {
		if upperName == g {
			return true
		}
	}
	return false
}

// GetAccounts extracts unique account IDs from the OFX file.
func (p *Parser) GetAccounts(_ context.Context, reader io.Reader) ([]string, error) {
	resp, err := p.parse(reader)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var accounts []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			accounts = append(accounts, id)
		}
	}

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			add(string(stmt.BankAcctFrom.AcctID))
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			add(string(stmt.CCAcctFrom.AcctID))
		}
	}

	return accounts, nil
}
